package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ReferenceProfile describes the one sanctioned device class. A bundle
// is only ever "authentic" when zero rules trigger AND it matches this
// profile in full; a loose platform hint alone proves nothing.
type ReferenceProfile struct {
	ScreenGeometry  string   `yaml:"screen_geometry"`
	VendorSubstring string   `yaml:"vendor_substring"`
	MinTouchPoints  int      `yaml:"min_touch_points"`
	PlatformFamily  []string `yaml:"platform_family"`
}

// Weights holds the per-rule confidence contributions. Confidence is
// the capped sum of triggered rule weights.
type Weights struct {
	EmulatorMarker    int `yaml:"emulator_marker"`
	VMMarker          int `yaml:"vm_marker"`
	AutomationMarker  int `yaml:"automation_marker"`
	RootMarker        int `yaml:"root_marker"`
	VirtualGeometry   int `yaml:"virtual_geometry"`
	SingleCore        int `yaml:"single_core"`
	TouchlessMobile   int `yaml:"touchless_mobile"`
	PlaceholderVendor int `yaml:"placeholder_vendor"`
	SoftwareRenderer  int `yaml:"software_renderer"`
	MissingAttributes int `yaml:"missing_attributes"`
}

// Config holds every tunable of the rule table: the reference profile,
// the signature pattern lists, and the weights.
type Config struct {
	Profile            ReferenceProfile `yaml:"profile"`
	EmulatorMarkers    []string         `yaml:"emulator_markers"`
	VMMarkers          []string         `yaml:"vm_markers"`
	AutomationMarkers  []string         `yaml:"automation_markers"`
	RootMarkers        []string         `yaml:"root_markers"`
	VirtualGeometries  []string         `yaml:"virtual_geometries"`
	PlaceholderVendors []string         `yaml:"placeholder_vendors"`
	SoftwareRenderers  []string         `yaml:"software_renderers"`
	Weights            Weights          `yaml:"weights"`
}

// DefaultConfig returns the built-in rule configuration. The profile
// matches the handset class the dashboard owner registered with.
func DefaultConfig() *Config {
	return &Config{
		Profile: ReferenceProfile{
			ScreenGeometry:  "390x844",
			VendorSubstring: "Apple",
			MinTouchPoints:  5,
			PlatformFamily:  []string{"iPhone", "iPad", "iOS"},
		},
		EmulatorMarkers: []string{
			"sdk_gphone",
			"Android SDK built for x86",
			"Emulator",
			"Simulator",
			"Genymotion",
			"BlueStacks",
			"Nox",
			"MEmu",
			"LDPlayer",
			"Andy",
		},
		VMMarkers: []string{
			"VirtualBox",
			"VMware",
			"QEMU",
			"KVM",
			"Hyper-V",
			"Parallels",
			"Xen",
		},
		AutomationMarkers: []string{
			"HeadlessChrome",
			"PhantomJS",
			"Selenium",
			"WebDriver",
			"Puppeteer",
			"Playwright",
			"Electron",
		},
		RootMarkers: []string{
			"Cydia",
			"Substrate",
			"Frida",
			"Xposed",
			"Magisk",
			"jailbreak",
			"rooted",
		},
		VirtualGeometries: []string{
			"800x600",
			"1024x768",
			"1280x800",
			"1280x1024",
			"640x480",
		},
		PlaceholderVendors: []string{
			"",
			"generic",
			"unknown",
			"default",
			"n/a",
			"none",
		},
		SoftwareRenderers: []string{
			"SwiftShader",
			"llvmpipe",
			"softpipe",
			"Mesa OffScreen",
			"VirtualBox",
			"VMware",
		},
		Weights: Weights{
			EmulatorMarker:    45,
			VMMarker:          40,
			AutomationMarker:  35,
			RootMarker:        35,
			VirtualGeometry:   30,
			SingleCore:        20,
			TouchlessMobile:   30,
			PlaceholderVendor: 25,
			SoftwareRenderer:  35,
			MissingAttributes: 20,
		},
	}
}

// Load reads classifier configuration from a YAML file.
// Empty path falls back to ~/.devicegate/classifier.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads classifier configuration and returns the SHA-256
// hash of the raw YAML bytes, recorded in audit entries so a decision
// can always be traced to the exact rule set that produced it. When no
// file exists (defaults used), the hash covers empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), emptyHash(), nil
		}
		path = filepath.Join(home, ".devicegate", "classifier.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("classifier: read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("classifier: parse config: %w", err)
	}

	h := sha256.Sum256(data)
	return cfg, "sha256:" + hex.EncodeToString(h[:]), nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}
