package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soloport/devicegate/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCheck is the explicit gate check: bundle in, decision out. For
// callers that gate out-of-band instead of via the middleware.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var bundle model.AttributeBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if bundle.SourceAddr == "" {
		bundle.SourceAddr = r.RemoteAddr
	}

	decision := s.gate.Check(bundle)
	status := http.StatusOK
	if !decision.Allow {
		status = http.StatusForbidden
	}
	writeJSON(w, status, decision)
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks := s.gate.Blocks()
	if blocks == nil {
		blocks = []model.BlockRecord{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	fp := model.Fingerprint(chi.URLParam(r, "fingerprint"))
	rec, ok := s.gate.Block(fp)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUnblock removes a block record. Privileged: the removal is
// written to the audit log before the response goes out.
func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	fp := model.Fingerprint(chi.URLParam(r, "fingerprint"))
	if !s.gate.Unblock(fp) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.logger.Info("fingerprint unblocked", "fp", fp.Prefix())
	writeJSON(w, http.StatusOK, map[string]string{
		"fingerprint": fp.Prefix(),
		"status":      "unblocked",
	})
}

// ownerView is the admin projection of the owner record. Only the
// fingerprint prefix leaves the gate.
type ownerView struct {
	Registered        bool      `json:"registered"`
	FingerprintPrefix string    `json:"fingerprint_prefix,omitempty"`
	RegisteredAt      time.Time `json:"registered_at,omitempty"`
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.gate.Owner()
	if !ok {
		writeJSON(w, http.StatusOK, ownerView{Registered: false})
		return
	}
	writeJSON(w, http.StatusOK, ownerView{
		Registered:        true,
		FingerprintPrefix: rec.Fingerprint.Prefix(),
		RegisteredAt:      rec.RegisteredAt,
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	recent := s.gate.Recent()
	if recent == nil {
		recent = []model.AccessDecision{}
	}
	writeJSON(w, http.StatusOK, recent)
}
