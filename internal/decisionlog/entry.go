package decisionlog

import (
	"github.com/soloport/devicegate/internal/model"
)

// Entry is one line in the hash-chained JSONL decision log.
// All fields are concrete (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
//
// The fingerprint is recorded as a truncated prefix only: the log must
// not allow reconstruction of the full digest.
type Entry struct {
	Timestamp         string   `json:"ts"`
	FingerprintPrefix string   `json:"fingerprint_prefix"`
	Allow             bool     `json:"allow"`
	DeviceType        string   `json:"device_type"`
	Confidence        int      `json:"confidence"`
	Reasons           []string `json:"reasons"`
	SourceAddr        string   `json:"source_addr"`
	RulePath          string   `json:"rule_path"`
	ConfigHash        string   `json:"config_hash"`
	PrevHash          string   `json:"prev_hash"`
}

// FromDecision flattens an AccessDecision into a log entry.
// Timestamp and PrevHash are filled in by Log.Record.
func FromDecision(d model.AccessDecision, configHash string) Entry {
	return Entry{
		FingerprintPrefix: d.FingerprintPrefix,
		Allow:             d.Allow,
		DeviceType:        string(d.DeviceType),
		Confidence:        d.Confidence,
		Reasons:           d.Reasons,
		SourceAddr:        d.SourceAddr,
		RulePath:          d.RulePath,
		ConfigHash:        configHash,
	}
}
