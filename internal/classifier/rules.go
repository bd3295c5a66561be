package classifier

import (
	"fmt"
	"strings"

	"github.com/soloport/devicegate/internal/model"
)

// Rule is one entry in the classifier's rule table: a trigger predicate
// over the bundle, the suspicious category it votes for, a weight, and
// a reason template for the audit trail.
type Rule struct {
	ID       string
	Category model.DeviceType
	Weight   int
	Match    func(model.AttributeBundle) (bool, string)
}

// touchPlatformHints mark a bundle as declaring a touch-capable device.
// A touch-capable declaration with zero touch points is a spoof tell.
var touchPlatformHints = []string{"iPhone", "iPad", "Android", "Mobile"}

// compileRules builds the rule table from configuration. Rule order is
// stable so reasons come out in a deterministic order.
func compileRules(cfg *Config) []Rule {
	w := cfg.Weights

	return []Rule{
		{
			ID:       "ua-emulator-marker",
			Category: model.DeviceEmulator,
			Weight:   w.EmulatorMarker,
			Match: func(b model.AttributeBundle) (bool, string) {
				if m := containsAny(b.UserAgent, cfg.EmulatorMarkers); m != "" {
					return true, fmt.Sprintf("client identification contains emulator marker %q", m)
				}
				return false, ""
			},
		},
		{
			ID:       "ua-vm-marker",
			Category: model.DeviceVM,
			Weight:   w.VMMarker,
			Match: func(b model.AttributeBundle) (bool, string) {
				if m := containsAny(b.UserAgent, cfg.VMMarkers); m != "" {
					return true, fmt.Sprintf("client identification contains VM marker %q", m)
				}
				return false, ""
			},
		},
		{
			ID:       "ua-automation-marker",
			Category: model.DeviceClone,
			Weight:   w.AutomationMarker,
			Match: func(b model.AttributeBundle) (bool, string) {
				if m := containsAny(b.UserAgent, cfg.AutomationMarkers); m != "" {
					return true, fmt.Sprintf("client identification contains automation marker %q", m)
				}
				return false, ""
			},
		},
		{
			ID:       "root-marker",
			Category: model.DeviceClone,
			Weight:   w.RootMarker,
			Match: func(b model.AttributeBundle) (bool, string) {
				haystack := b.UserAgent + " " + b.Platform
				if m := containsAny(haystack, cfg.RootMarkers); m != "" {
					return true, fmt.Sprintf("jailbreak/root indicator %q present", m)
				}
				return false, ""
			},
		},
		{
			ID:       "virtual-geometry",
			Category: model.DeviceVM,
			Weight:   w.VirtualGeometry,
			Match: func(b model.AttributeBundle) (bool, string) {
				for _, g := range cfg.VirtualGeometries {
					if b.ScreenGeometry == g {
						return true, fmt.Sprintf("screen geometry %s is a virtualized-display default", g)
					}
				}
				return false, ""
			},
		},
		{
			ID:       "single-core",
			Category: model.DeviceVM,
			Weight:   w.SingleCore,
			Match: func(b model.AttributeBundle) (bool, string) {
				if b.HardwareConcurrency == 1 {
					return true, "hardware concurrency of 1 is implausible for a modern handset"
				}
				return false, ""
			},
		},
		{
			ID:       "touchless-mobile",
			Category: model.DeviceClone,
			Weight:   w.TouchlessMobile,
			Match: func(b model.AttributeBundle) (bool, string) {
				if b.TouchPoints != 0 {
					return false, ""
				}
				haystack := b.Platform + " " + b.UserAgent
				if m := containsAny(haystack, touchPlatformHints); m != "" {
					return true, fmt.Sprintf("platform declares touch-capable %q but reports zero touch points", m)
				}
				return false, ""
			},
		},
		{
			ID:       "placeholder-vendor",
			Category: model.DeviceClone,
			Weight:   w.PlaceholderVendor,
			Match: func(b model.AttributeBundle) (bool, string) {
				v := strings.ToLower(strings.TrimSpace(b.Vendor))
				for _, p := range cfg.PlaceholderVendors {
					if v == strings.ToLower(p) {
						return true, fmt.Sprintf("vendor string %q is a generic placeholder", b.Vendor)
					}
				}
				return false, ""
			},
		},
		{
			ID:       "software-renderer",
			Category: model.DeviceEmulator,
			Weight:   w.SoftwareRenderer,
			Match: func(b model.AttributeBundle) (bool, string) {
				if b.GPURenderer == nil {
					return false, ""
				}
				if m := containsAny(*b.GPURenderer, cfg.SoftwareRenderers); m != "" {
					return true, fmt.Sprintf("GPU renderer reports software/virtual backend %q", m)
				}
				return false, ""
			},
		},
		{
			ID:       "missing-attributes",
			Category: model.DeviceClone,
			Weight:   w.MissingAttributes,
			Match: func(b model.AttributeBundle) (bool, string) {
				missing := 0
				for _, v := range []string{b.Platform, b.UserAgent, b.ScreenGeometry} {
					if strings.TrimSpace(v) == "" {
						missing++
					}
				}
				if missing > 0 {
					return true, fmt.Sprintf("%d core attribute(s) missing from bundle", missing)
				}
				return false, ""
			},
		},
	}
}

// containsAny returns the first needle contained in s, case-insensitive,
// or "" when none match. Empty needles never match.
func containsAny(s string, needles []string) string {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(n)) {
			return n
		}
	}
	return ""
}
