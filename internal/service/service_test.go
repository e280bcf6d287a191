package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/factorwatch/internal/alert"
	"github.com/ppiankov/factorwatch/internal/audit"
	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/model"
)

func writePolicy(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func scoredRequest() engine.Request {
	return engine.Request{Scores: map[string]model.Scores{
		"a": {model.AttrSecurity: 7},
		"b": {model.AttrSecurity: 9},
	}}
}

func TestDecideAndReload(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	writePolicy(t, policyPath, "factors: [password]\n")

	svc, err := New(Config{PolicyPath: policyPath, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	d, err := svc.Decide(context.Background(), scoredRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Solutions) != 3 {
		t.Errorf("expected 3 solutions, got %v", d.Solutions)
	}
	firstHash := svc.PolicyHash()

	writePolicy(t, policyPath, "constraints:\n  base:\n    Security: {min: 8, max: 10}\n")
	if err := svc.Reload(); err != nil {
		t.Fatal(err)
	}
	if svc.PolicyHash() == firstHash {
		t.Error("expected policy hash to change")
	}
	if svc.Version() != 2 {
		t.Errorf("expected version 2, got %d", svc.Version())
	}

	d, err = svc.Decide(context.Background(), scoredRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Solutions) != 1 || d.Solutions[0].Key() != "b" {
		t.Errorf("expected only {b} after reload, got %v", d.Solutions)
	}
}

func TestFailedReloadKeepsEngine(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	writePolicy(t, policyPath, "factors: [password]\n")

	svc, err := New(Config{PolicyPath: policyPath})
	if err != nil {
		t.Fatal(err)
	}
	hash := svc.PolicyHash()

	writePolicy(t, policyPath, "solver: {backend: minisat}\n")
	if err := svc.Reload(); err == nil {
		t.Fatal("expected reload error for invalid policy")
	}
	if svc.PolicyHash() != hash || svc.Version() != 1 {
		t.Error("expected previous engine to stay active")
	}
	if _, err := svc.Decide(context.Background(), scoredRequest()); err != nil {
		t.Errorf("expected decisions to keep working, got %v", err)
	}
}

func TestProfileFillsBundles(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(Config{PolicyPath: filepath.Join(dir, "absent.yaml"), ProfileName: "cafe"})
	if err != nil {
		t.Fatal(err)
	}
	c, adj := svc.Derive(engine.Request{})
	if c[model.AttrPrivacy] != model.R(7, 10) {
		t.Errorf("expected cafe high rating to raise Privacy, got %s", c[model.AttrPrivacy])
	}
	if len(adj) == 0 {
		t.Error("expected adjustments from cafe context")
	}

	// Request values win over the profile.
	c, _ = svc.Derive(engine.Request{Context: model.Bundle{"recent_failed_attempts": 0, "request_security_rating": "low"}})
	if c[model.AttrSecurity] != model.R(6, 10) {
		t.Errorf("expected base Security with overrides, got %s", c[model.AttrSecurity])
	}
}

func TestUnknownProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := New(Config{PolicyPath: filepath.Join(t.TempDir(), "absent.yaml"), ProfileName: "nowhere"})
	if err == nil || !strings.Contains(err.Error(), "nowhere") {
		t.Errorf("expected profile error, got %v", err)
	}
}

func TestAuditLogWritten(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "decisions.jsonl")
	svc, err := New(Config{PolicyPath: filepath.Join(dir, "absent.yaml"), AuditLogPath: logPath})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Decide(context.Background(), scoredRequest()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	result := audit.Verify(logPath)
	if !result.Valid || result.Lines != 1 {
		t.Errorf("expected one valid audit line, got %+v", result)
	}
}

func TestFactors(t *testing.T) {
	svc, err := New(Config{PolicyPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatal(err)
	}
	if len(svc.Factors()) != 11 {
		t.Errorf("expected 11 builtin factors, got %v", svc.Factors())
	}
}

func TestAlertsOnNoEligible(t *testing.T) {
	received := make(chan alert.Event, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev alert.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode alert: %v", err)
		}
		received <- ev
	}))
	defer hook.Close()

	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	writePolicy(t, policyPath, fmt.Sprintf("alerts:\n  - url: %s\n    events: [no_eligible_factor]\n", hook.URL))

	svc, err := New(Config{PolicyPath: policyPath, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatal(err)
	}

	// selected: not subscribed.
	if _, err := svc.Decide(context.Background(), scoredRequest()); err != nil {
		t.Fatal(err)
	}
	weak := engine.Request{Scores: map[string]model.Scores{"a": {model.AttrSecurity: 1}}}
	if _, err := svc.Decide(context.Background(), weak); err == nil {
		t.Fatal("expected no eligible factor error")
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	if len(received) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(received))
	}
	ev := <-received
	if ev.Outcome != "no_eligible_factor" || ev.Excluded != 1 {
		t.Errorf("unexpected alert %+v", ev)
	}
}
