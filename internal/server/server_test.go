package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soloport/devicegate/internal/model"
	"github.com/soloport/devicegate/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{
		Addr:   "127.0.0.1:0",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const ownerUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

func setOwnerHeaders(r *http.Request) {
	r.Header.Set("X-Device-Platform", "iPhone")
	r.Header.Set("User-Agent", ownerUA)
	r.Header.Set("X-Device-Screen-Geometry", "390x844")
	r.Header.Set("X-Device-Vendor", "Apple Computer, Inc.")
	r.Header.Set("X-Device-Touch-Points", "5")
	r.Header.Set("X-Device-Hardware-Concurrency", "6")
	r.Header.Set("X-Device-Gpu-Renderer", "Apple GPU")
}

func setEmulatorHeaders(r *http.Request) {
	setOwnerHeaders(r)
	r.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 13; sdk_gphone64_x86_64) AppleWebKit/537.36")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewarePassesNonMutating(t *testing.T) {
	s := newTestServer(t)
	h := s.Middleware(okHandler())

	// No device headers at all: a GET must still pass untouched.
	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET got %d, want 200", rec.Code)
	}
	if len(s.gate.Recent()) != 0 {
		t.Error("non-mutating request must not be fingerprinted")
	}
}

func TestMiddlewareAllowsOwnerPost(t *testing.T) {
	s := newTestServer(t)
	h := s.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setOwnerHeaders(req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("owner POST got %d, want 200", rec.Code)
	}
	if _, ok := s.gate.Owner(); !ok {
		t.Error("first authentic POST should register the owner")
	}
}

func TestMiddlewareDeniesEmulatorPost(t *testing.T) {
	s := newTestServer(t)
	reached := false
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setEmulatorHeaders(req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("emulator POST got %d, want 403", rec.Code)
	}
	if reached {
		t.Error("denied request must never reach the handler")
	}

	var body deniedResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Blocked || body.Reason != "device rejected" {
		t.Errorf("unexpected deny body: %+v", body)
	}

	// Second attempt hits the block list and gets the blocked category.
	req = httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setEmulatorHeaders(req)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	json.NewDecoder(rec.Body).Decode(&body)
	if body.Reason != "device blocked" {
		t.Errorf("repeat offender reason %q, want \"device blocked\"", body.Reason)
	}
}

func TestMiddlewareNeverLeaksFingerprint(t *testing.T) {
	s := newTestServer(t)
	h := s.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setEmulatorHeaders(req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	fp := string(s.gate.Fingerprint(bundleFromRequest(req)))
	if strings.Contains(rec.Body.String(), fp) {
		t.Error("response body contains the full fingerprint")
	}
}

func TestCheckEndpoint(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	bundle := map[string]any{
		"platform":             "iPhone",
		"user_agent":           ownerUA,
		"screen_geometry":      "390x844",
		"vendor":               "Apple Computer, Inc.",
		"touch_points":         5,
		"hardware_concurrency": 6,
		"gpu_renderer":         "Apple GPU",
	}
	body, _ := json.Marshal(bundle)

	resp, err := http.Post(ts.URL+"/api/gate/check", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authentic check got %d, want 200", resp.StatusCode)
	}
	var d model.AccessDecision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if !d.Allow || d.DeviceType != model.DeviceAuthentic {
		t.Errorf("unexpected decision: %+v", d)
	}
	if len(d.FingerprintPrefix) != model.PrefixLen {
		t.Errorf("decision must carry the prefix only, got %q", d.FingerprintPrefix)
	}
}

func TestCheckEndpointRejectsBadBody(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/gate/check", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got %d, want 400", resp.StatusCode)
	}
}

func TestAdminBlocksAndUnblock(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	// Empty list before any denial.
	resp, err := http.Get(ts.URL + "/admin/blocks")
	if err != nil {
		t.Fatal(err)
	}
	var blocks []model.BlockRecord
	json.NewDecoder(resp.Body).Decode(&blocks)
	resp.Body.Close()
	if len(blocks) != 0 {
		t.Fatalf("expected empty block list, got %d", len(blocks))
	}

	// Deny an emulator, then read its record back.
	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setEmulatorHeaders(req)
	s.Middleware(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

	resp, err = http.Get(ts.URL + "/admin/blocks")
	if err != nil {
		t.Fatal(err)
	}
	json.NewDecoder(resp.Body).Decode(&blocks)
	resp.Body.Close()
	if len(blocks) != 1 {
		t.Fatalf("expected one block record, got %d", len(blocks))
	}

	fp := blocks[0].Fingerprint
	resp, err = http.Get(ts.URL + "/admin/blocks/" + string(fp))
	if err != nil {
		t.Fatal(err)
	}
	var rec model.BlockRecord
	json.NewDecoder(resp.Body).Decode(&rec)
	resp.Body.Close()
	if rec.Fingerprint != fp || rec.AttemptCount != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}

	// Privileged removal.
	delReq, _ := http.NewRequest(http.MethodDelete, ts.URL+"/admin/blocks/"+string(fp), nil)
	resp, err = http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unblock got %d, want 200", resp.StatusCode)
	}

	resp, _ = http.Get(ts.URL + "/admin/blocks/" + string(fp))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("record still served after unblock: %d", resp.StatusCode)
	}
}

func TestAdminOwnerPrefixOnly(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/admin/owner")
	if err != nil {
		t.Fatal(err)
	}
	var view ownerView
	json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if view.Registered {
		t.Error("no owner should be registered yet")
	}

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setOwnerHeaders(req)
	s.Middleware(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

	resp, err = http.Get(ts.URL + "/admin/owner")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	json.Unmarshal(body, &view)

	if !view.Registered {
		t.Fatal("owner should be registered")
	}
	if len(view.FingerprintPrefix) != model.PrefixLen {
		t.Errorf("owner view prefix length %d, want %d", len(view.FingerprintPrefix), model.PrefixLen)
	}
	owner, _ := s.gate.Owner()
	if strings.Contains(string(body), string(owner.Fingerprint)) {
		t.Error("owner view leaks the full fingerprint")
	}
}

func TestAdminDecisions(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	h := s.Middleware(okHandler())
	for _, set := range []func(*http.Request){setOwnerHeaders, setEmulatorHeaders} {
		req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
		set(req)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	resp, err := http.Get(ts.URL + "/admin/decisions")
	if err != nil {
		t.Fatal(err)
	}
	var decisions []model.AccessDecision
	json.NewDecoder(resp.Body).Decode(&decisions)
	resp.Body.Close()

	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if decisions[0].Allow || !decisions[1].Allow {
		t.Error("expected newest-first ordering [deny allow]")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health got %d, want 200", resp.StatusCode)
	}
}

func TestReloadClassifierSwapsRuleTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classifier.yaml")
	if err := os.WriteFile(path, []byte("profile:\n  screen_geometry: \"390x844\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{
		Addr:           "127.0.0.1:0",
		ClassifierPath: path,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setOwnerHeaders(req)
	if d := s.gate.Check(bundleFromRequest(req)); !d.Allow {
		t.Fatalf("owner denied before reload: %v", d.Reasons)
	}

	// Tighten the profile so the owner geometry no longer matches.
	if err := os.WriteFile(path, []byte("profile:\n  screen_geometry: \"428x926\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.ReloadClassifier(); err != nil {
		t.Fatal(err)
	}

	b := bundleFromRequest(req)
	b.UserAgent = ownerUA + " second" // new fingerprint, avoid registry match
	if d := s.gate.Check(b); d.Allow {
		t.Error("reloaded profile should reject the old geometry")
	}
}

func TestServerDegradesWithoutStore(t *testing.T) {
	// A sqlite path whose parent is a regular file cannot be opened;
	// startup must degrade to in-memory, not fail.
	notDir := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(notDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{
		Addr:   "127.0.0.1:0",
		Store:  store.Config{SQLitePath: filepath.Join(notDir, "devicegate.db")},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("startup must degrade, got error: %v", err)
	}
	defer s.Close()

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	setOwnerHeaders(req)
	if d := s.gate.Check(bundleFromRequest(req)); !d.Allow {
		t.Errorf("in-memory path must stay authoritative: %v", d.Reasons)
	}
}
