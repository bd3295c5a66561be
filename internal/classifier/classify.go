// Package classifier labels attribute bundles as authentic or a
// suspicious device category using a single data-driven rule table.
// Classification is a pure function of the bundle: every heuristic is
// independently testable and the confidence arithmetic is auditable.
package classifier

import (
	"strings"

	"github.com/soloport/devicegate/internal/model"
)

// Classifier evaluates bundles against a compiled rule table and the
// reference profile. Safe for concurrent use: nothing mutates after New.
type Classifier struct {
	cfg   *Config
	rules []Rule
}

// New compiles a Classifier from configuration.
func New(cfg *Config) *Classifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Classifier{cfg: cfg, rules: compileRules(cfg)}
}

// Rules exposes the compiled rule table, for per-rule tests and the
// offline check command.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify evaluates every rule against the bundle.
//
//   - confidence is the weight sum of triggered rules, capped at 100
//   - the verdict is the highest-priority category among triggered
//     rules (emulator > vm > clone), while reasons keep every triggered
//     description for audit completeness
//   - zero triggers + full reference-profile match → authentic
//   - zero triggers without a profile match → unknown (the gate treats
//     unknown as non-authentic; nothing is allowed on a weak hint)
func (c *Classifier) Classify(b model.AttributeBundle) model.Classification {
	var (
		reasons    []string
		confidence int
		verdict    model.DeviceType
	)

	for _, r := range c.rules {
		hit, reason := r.Match(b)
		if !hit {
			continue
		}
		reasons = append(reasons, reason)
		confidence += r.Weight
		if model.TypeRank[r.Category] > model.TypeRank[verdict] {
			verdict = r.Category
		}
	}

	if verdict != "" {
		if confidence > 100 {
			confidence = 100
		}
		return model.Classification{DeviceType: verdict, Confidence: confidence, Reasons: reasons}
	}

	if c.matchesProfile(b) {
		return model.Classification{DeviceType: model.DeviceAuthentic, Confidence: 0}
	}

	return model.Classification{
		DeviceType: model.DeviceUnknown,
		Confidence: 0,
		Reasons:    []string{"no disqualifying rules triggered but bundle does not match the sanctioned device profile"},
	}
}

// matchesProfile checks the bundle against the full reference profile.
// Every clause must hold; there is no partial credit.
func (c *Classifier) matchesProfile(b model.AttributeBundle) bool {
	p := c.cfg.Profile

	if b.ScreenGeometry != p.ScreenGeometry {
		return false
	}
	if !strings.Contains(strings.ToLower(b.Vendor), strings.ToLower(p.VendorSubstring)) {
		return false
	}
	if b.TouchPoints < p.MinTouchPoints {
		return false
	}

	family := false
	for _, f := range p.PlatformFamily {
		if f == "" {
			continue
		}
		if strings.Contains(strings.ToLower(b.Platform), strings.ToLower(f)) {
			family = true
			break
		}
	}
	return family
}
