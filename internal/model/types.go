package model

import "time"

// DeviceType is the classifier verdict for an attribute bundle.
type DeviceType string

const (
	DeviceAuthentic DeviceType = "authentic"
	DeviceEmulator  DeviceType = "emulator"
	DeviceVM        DeviceType = "vm"
	DeviceClone     DeviceType = "clone"
	DeviceUnknown   DeviceType = "unknown"
)

// TypeRank maps suspicious device types to a comparable integer for
// category resolution. Higher rank wins when rules trigger across
// categories: emulator > vm > clone.
var TypeRank = map[DeviceType]int{
	DeviceClone:    1,
	DeviceVM:       2,
	DeviceEmulator: 3,
}

// Suspicious returns true for verdicts that must be blocked outright.
func (d DeviceType) Suspicious() bool {
	return d == DeviceEmulator || d == DeviceVM || d == DeviceClone
}

// Fingerprint is the hex-encoded SHA-256 digest of a canonicalized
// attribute bundle. It is the identity key for every store in the gate.
type Fingerprint string

// PrefixLen is how many hex characters of a fingerprint may appear in
// logs and admin responses. The full digest never leaves the gate.
const PrefixLen = 12

// Prefix returns the truncated log-safe form of the fingerprint.
func (f Fingerprint) Prefix() string {
	if len(f) <= PrefixLen {
		return string(f)
	}
	return string(f[:PrefixLen])
}

// AttributeBundle holds the request-derived device features consumed by
// the fingerprint generator and the classifier. It is request-scoped
// and never persisted verbatim.
//
// GPURenderer is a pointer so that an absent renderer is distinguishable
// from an empty string: the two must not fingerprint identically.
type AttributeBundle struct {
	Platform            string  `json:"platform" yaml:"platform"`
	UserAgent           string  `json:"user_agent" yaml:"user_agent"`
	ScreenGeometry      string  `json:"screen_geometry" yaml:"screen_geometry"`
	Vendor              string  `json:"vendor" yaml:"vendor"`
	TouchPoints         int     `json:"touch_points" yaml:"touch_points"`
	HardwareConcurrency int     `json:"hardware_concurrency" yaml:"hardware_concurrency"`
	GPURenderer         *string `json:"gpu_renderer,omitempty" yaml:"gpu_renderer,omitempty"`

	// SourceAddr is carried for block-record metadata and decision
	// logging. It is not part of the fingerprint: the same device seen
	// from a new network must keep its identity.
	SourceAddr string `json:"source_addr,omitempty" yaml:"source_addr,omitempty"`
}

// Classification is the rule-table verdict for a bundle. Pure data,
// no hidden state.
type Classification struct {
	DeviceType DeviceType `json:"device_type"`
	Confidence int        `json:"confidence"`
	Reasons    []string   `json:"reasons"`
}

// Rule paths identify which gate branch produced a decision. Recorded
// in the audit log alongside the verdict.
const (
	PathBlocklistHit      = "blocklist.hit"
	PathClassifierReject  = "classifier.reject"
	PathRegistryFirst     = "registry.first"
	PathRegistryMatch     = "registry.match"
	PathRegistryMismatch  = "registry.mismatch"
	PathInternalError     = "internal.error"
	PathPrivilegedUnblock = "privileged.unblock"
	PathPrivilegedReset   = "privileged.reset"
)

// Deny reason categories surfaced to callers. Raw fingerprints and rule
// weights stay internal.
const (
	ReasonPreviouslyBlocked = "previously blocked"
	ReasonSignatureMismatch = "signature mismatch with registered device"
	ReasonInternalError     = "internal classification error"
)

// AccessDecision is the per-request outcome of the gate. Transient:
// logged, never stored as an entity.
type AccessDecision struct {
	Allow             bool       `json:"allow"`
	DeviceType        DeviceType `json:"device_type"`
	Confidence        int        `json:"confidence"`
	Reasons           []string   `json:"reasons"`
	FingerprintPrefix string     `json:"fingerprint_prefix"`
	RulePath          string     `json:"rule_path"`
	SourceAddr        string     `json:"source_addr,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// BlockRecord is the permanent record of a disqualified fingerprint.
// Repeat offences merge into the existing record; normal flow never
// deletes one.
type BlockRecord struct {
	Fingerprint     Fingerprint `json:"fingerprint"`
	Reason          string      `json:"reason"`
	FirstSeenAt     time.Time   `json:"first_seen_at"`
	LastSeenAt      time.Time   `json:"last_seen_at"`
	AttemptCount    int64       `json:"attempt_count"`
	SourceAddresses []string    `json:"source_addresses"`
}

// OwnerRecord is the single sanctioned identity. At most one exists for
// the lifetime of the service; set exactly once, reset only by the
// privileged CLI path.
type OwnerRecord struct {
	Fingerprint  Fingerprint `json:"fingerprint"`
	RegisteredAt time.Time   `json:"registered_at"`
}
