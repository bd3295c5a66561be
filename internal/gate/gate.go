// Package gate decides, per mutating request, whether the presenting
// device is the one sanctioned owner. It owns the authenticity registry
// and the block list; nothing else mutates them. Every internal fault
// resolves to deny — the gate never fails open.
package gate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/soloport/devicegate/internal/blocklist"
	"github.com/soloport/devicegate/internal/decisionlog"
	"github.com/soloport/devicegate/internal/fingerprint"
	"github.com/soloport/devicegate/internal/model"
	"github.com/soloport/devicegate/internal/registry"
	"github.com/soloport/devicegate/internal/store"
)

// Classifier is the verdict engine the gate consults. Implementations
// must be pure functions of the bundle.
type Classifier interface {
	Classify(model.AttributeBundle) model.Classification
}

// Config wires the gate's collaborators. Registry and Blocks default to
// fresh empty stores; Writer defaults to a no-op in-memory writer; Log
// may be nil to skip the durable audit trail.
type Config struct {
	Classifier Classifier
	ConfigHash string
	Registry   *registry.Registry
	Blocks     *blocklist.BlockList
	Writer     *store.Writer
	Log        *decisionlog.Log
	RingSize   int
	Logger     *slog.Logger
}

// Gate is the access decision engine. Construct with New and share one
// instance across request handlers; all methods are safe for concurrent
// use.
type Gate struct {
	mu         sync.RWMutex
	classifier Classifier
	configHash string

	registry *registry.Registry
	blocks   *blocklist.BlockList
	writer   *store.Writer
	log      *decisionlog.Log
	ring     *decisionlog.Ring
	logger   *slog.Logger
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Blocks == nil {
		cfg.Blocks = blocklist.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Writer == nil {
		cfg.Writer = store.NewWriter(nil, cfg.Logger)
	}
	return &Gate{
		classifier: cfg.Classifier,
		configHash: cfg.ConfigHash,
		registry:   cfg.Registry,
		blocks:     cfg.Blocks,
		writer:     cfg.Writer,
		log:        cfg.Log,
		ring:       decisionlog.NewRing(cfg.RingSize),
		logger:     cfg.Logger,
	}
}

// Swap atomically replaces the classifier and its config hash.
// Decisions in flight finish on the table they started with.
func (g *Gate) Swap(c Classifier, configHash string) {
	g.mu.Lock()
	g.classifier = c
	g.configHash = configHash
	g.mu.Unlock()
}

// Check runs the full decision algorithm for one mutating request.
// It never returns an error: faults inside classification or the stores
// resolve to a deny with the internal-error reason category.
func (g *Gate) Check(bundle model.AttributeBundle) (decision model.AccessDecision) {
	fp := fingerprint.Compute(bundle)

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("gate: internal fault, failing closed",
				"panic", r, "fingerprint", fp.Prefix())
			decision = g.finish(fp, bundle, model.AccessDecision{
				Allow:      false,
				DeviceType: model.DeviceUnknown,
				Reasons:    []string{model.ReasonInternalError},
				RulePath:   model.PathInternalError,
			})
		}
	}()

	// Blocked fingerprints are denied before any classification; the
	// merge keeps attempt metadata current.
	if g.blocks.Contains(fp) {
		rec := g.blocks.AddOrMerge(fp, model.ReasonPreviouslyBlocked, bundle.SourceAddr)
		g.writer.SaveBlock(rec)
		return g.finish(fp, bundle, model.AccessDecision{
			Allow:      false,
			DeviceType: model.DeviceUnknown,
			Reasons:    []string{model.ReasonPreviouslyBlocked},
			RulePath:   model.PathBlocklistHit,
		})
	}

	g.mu.RLock()
	classifier := g.classifier
	g.mu.RUnlock()

	result := classifier.Classify(bundle)

	if result.DeviceType != model.DeviceAuthentic {
		rec := g.blocks.AddOrMerge(fp, strings.Join(result.Reasons, "; "), bundle.SourceAddr)
		g.writer.SaveBlock(rec)
		return g.finish(fp, bundle, model.AccessDecision{
			Allow:      false,
			DeviceType: result.DeviceType,
			Confidence: result.Confidence,
			Reasons:    result.Reasons,
			RulePath:   model.PathClassifierReject,
		})
	}

	// Classifier says authentic: consult the registry.
	if _, ok := g.registry.Current(); !ok {
		if rec, won := g.registry.RegisterIfAbsent(fp); won {
			g.writer.SaveOwner(rec)
			return g.finish(fp, bundle, model.AccessDecision{
				Allow:      true,
				DeviceType: result.DeviceType,
				Confidence: result.Confidence,
				RulePath:   model.PathRegistryFirst,
			})
		}
		// Lost a concurrent first-contact race; fall through and judge
		// against whoever won.
	}

	owner, _ := g.registry.Current()
	if owner.Fingerprint == fp {
		return g.finish(fp, bundle, model.AccessDecision{
			Allow:      true,
			DeviceType: result.DeviceType,
			Confidence: result.Confidence,
			RulePath:   model.PathRegistryMatch,
		})
	}

	// A different fingerprint holds the slot: signature mismatch.
	rec := g.blocks.AddOrMerge(fp, model.ReasonSignatureMismatch, bundle.SourceAddr)
	g.writer.SaveBlock(rec)
	return g.finish(fp, bundle, model.AccessDecision{
		Allow:      false,
		DeviceType: result.DeviceType,
		Confidence: result.Confidence,
		Reasons:    []string{model.ReasonSignatureMismatch},
		RulePath:   model.PathRegistryMismatch,
	})
}

// finish stamps the decision, records it in the ring and the audit
// trail, and emits the service log line. Audit I/O failure degrades to
// a warning; the decision already made stands.
func (g *Gate) finish(fp model.Fingerprint, bundle model.AttributeBundle, d model.AccessDecision) model.AccessDecision {
	d.FingerprintPrefix = fp.Prefix()
	d.SourceAddr = bundle.SourceAddr
	d.Timestamp = time.Now().UTC()

	g.ring.Push(d)

	if g.log != nil {
		g.mu.RLock()
		hash := g.configHash
		g.mu.RUnlock()
		if err := g.log.Record(decisionlog.FromDecision(d, hash)); err != nil {
			g.logger.Warn("gate: decision audit write failed", "error", err)
		}
	}

	g.logger.Info("gate decision",
		"allow", d.Allow,
		"device_type", d.DeviceType,
		"confidence", d.Confidence,
		"fingerprint", d.FingerprintPrefix,
		"rule_path", d.RulePath,
		"source", d.SourceAddr)
	return d
}

// Fingerprint exposes the digest for a bundle, for the offline check
// command and admin tooling.
func (g *Gate) Fingerprint(bundle model.AttributeBundle) model.Fingerprint {
	return fingerprint.Compute(bundle)
}

// Blocks returns every block record, most recently seen first.
func (g *Gate) Blocks() []model.BlockRecord {
	return g.blocks.All()
}

// Block returns the block record for one fingerprint.
func (g *Gate) Block(fp model.Fingerprint) (model.BlockRecord, bool) {
	return g.blocks.Get(fp)
}

// Owner returns the registered owner record, if any.
func (g *Gate) Owner() (model.OwnerRecord, bool) {
	return g.registry.Current()
}

// Recent returns recent decisions, newest first.
func (g *Gate) Recent() []model.AccessDecision {
	return g.ring.Recent()
}

// Unblock removes a fingerprint from the block list. Privileged
// operator override: it is never called from the request path, and the
// removal itself is audited.
func (g *Gate) Unblock(fp model.Fingerprint) bool {
	removed := g.blocks.Remove(fp)
	if !removed {
		return false
	}
	g.writer.DeleteBlock(fp)
	g.audit(fp, model.PathPrivilegedUnblock, "operator removed block record")
	return true
}

// ResetOwner clears the authenticity slot. Privileged operator path;
// the next authentic first contact re-registers.
func (g *Gate) ResetOwner() (model.OwnerRecord, bool) {
	old, ok := g.registry.Reset()
	if !ok {
		return model.OwnerRecord{}, false
	}
	g.writer.DeleteOwner()
	g.audit(old.Fingerprint, model.PathPrivilegedReset, "operator reset owner registration")
	return old, true
}

// WarmFrom seeds the in-memory stores from the durable backend at
// startup. Backend failure degrades to a cold in-memory start with a
// warning; it never prevents the gate from serving.
func (g *Gate) WarmFrom(ctx context.Context, backend store.Backend) {
	if backend == nil {
		return
	}

	if owner, ok, err := backend.LoadOwner(ctx); err != nil {
		g.logger.Warn("gate: owner warm load failed, starting cold", "error", err)
	} else if ok {
		g.registry.Seed(owner)
	}

	recs, err := backend.LoadBlocks(ctx)
	if err != nil {
		g.logger.Warn("gate: block warm load failed, starting cold", "error", err)
		return
	}
	for _, rec := range recs {
		g.blocks.Seed(rec)
	}
	if len(recs) > 0 {
		g.logger.Info("gate: warm loaded block records", "count", len(recs))
	}
}

func (g *Gate) audit(fp model.Fingerprint, path, reason string) {
	d := model.AccessDecision{
		Allow:             false,
		DeviceType:        model.DeviceUnknown,
		Reasons:           []string{reason},
		FingerprintPrefix: fp.Prefix(),
		RulePath:          path,
		Timestamp:         time.Now().UTC(),
	}
	if g.log != nil {
		g.mu.RLock()
		hash := g.configHash
		g.mu.RUnlock()
		if err := g.log.Record(decisionlog.FromDecision(d, hash)); err != nil {
			g.logger.Warn("gate: privileged-operation audit write failed", "error", err)
		}
	}
	g.logger.Info("gate privileged operation", "rule_path", path, "fingerprint", fp.Prefix())
}
