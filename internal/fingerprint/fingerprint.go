// Package fingerprint derives the stable device identity digest from an
// attribute bundle. Pure functions only: no state, no I/O, safe to call
// from any number of request goroutines.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/soloport/devicegate/internal/model"
)

// absentSentinel stands in for an optional field that was not supplied.
// It contains a NUL byte so no legitimate attribute value can collide
// with it; in particular "missing GPU renderer" and "empty GPU renderer"
// hash differently.
const absentSentinel = "\x00absent\x00"

// Compute returns the SHA-256 fingerprint of the bundle's device
// attributes. Fields are serialized in canonical (sorted-name) order
// with length framing, so neither field ordering nor crafted separator
// bytes inside values can influence the digest.
//
// SourceAddr is deliberately excluded: network location is block-record
// metadata, not device identity.
func Compute(b model.AttributeBundle) model.Fingerprint {
	gpu := absentSentinel
	if b.GPURenderer != nil {
		gpu = *b.GPURenderer
	}

	fields := []struct {
		name  string
		value string
	}{
		{"gpu_renderer", gpu},
		{"hardware_concurrency", strconv.Itoa(b.HardwareConcurrency)},
		{"platform", b.Platform},
		{"screen_geometry", b.ScreenGeometry},
		{"touch_points", strconv.Itoa(b.TouchPoints)},
		{"user_agent", b.UserAgent},
		{"vendor", b.Vendor},
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

	h := sha256.New()
	for _, f := range fields {
		fmt.Fprintf(h, "%s\x00%d\x00%s\x00", f.name, len(f.value), f.value)
	}
	return model.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
