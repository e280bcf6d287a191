package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/ppiankov/factorwatch/internal/server"
	"github.com/ppiankov/factorwatch/internal/service"
	"github.com/ppiankov/factorwatch/internal/systemd"
	"github.com/ppiankov/factorwatch/internal/wire"
)

const scenarioA = `
scores:
  password: {Security: 8, Intrusiveness: 5, Privacy: 6}
  geolocation: {Security: 5, Intrusiveness: 3, Privacy: 5, Accuracy: 2}
`

func resetFlags() {
	policyPath, profileName, logLevel = "", "", "error"
	decideInput, decideAuditLog, decideRemote, decideFormat = "", "", "", "text"
	// A changed string slice appends on the next Set; clear value and state.
	if f := decideCmd.Flags().Lookup("factors"); f != nil {
		_ = f.Value.(pflag.SliceValue).Replace(nil)
		f.Changed = false
	}
	decideFactors = nil
	deriveInput, deriveRemote, deriveFormat = "", "", "text"
	checkScenario, checkFormat = "", "text"
	tailLines, tailOutcome, tailRequestID, tailSince, tailFormat = 10, "", "", 0, "table"
	initPolicyOutput, initPolicyForce = "", false
	initOutput = ""
	diffFormat = "text"
	initServiceOutput = ""
	initServiceOpts = systemd.ServeOptions{HTTPAddr: ":8080", Port: 50051}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("expected JSON, got %q", out)
	}
	if info["name"] != "factorwatch" {
		t.Errorf("expected name factorwatch, got %v", info["name"])
	}
}

func TestDecideText(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	req := writeFile(t, "req.yaml", scenarioA)

	out, err := execute(t, "decide", "-i", req)
	if err != nil {
		t.Fatalf("decide failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Outcome:  selected", "1. password", "geolocation", "Solutions: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestDecideNoEligibleFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	req := writeFile(t, "req.json", `{"scores": {"weak": {"Security": 1}}}`)

	out, err := execute(t, "decide", "-i", req)
	if err == nil || !strings.Contains(err.Error(), "no_eligible_factor") {
		t.Fatalf("expected no_eligible_factor error, got %v", err)
	}
	if !strings.Contains(out, "Security=1 outside [6, 10]") {
		t.Errorf("expected exclusion reason in output, got:\n%s", out)
	}
}

func TestDecideUnknownFactor(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := execute(t, "decide", "--factors", "retina_scan")
	if err == nil || !strings.Contains(err.Error(), "retina_scan") {
		t.Fatalf("expected unknown factor error, got %v", err)
	}
}

func TestDecideFactorsFlagDoesNotCarryOver(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	req := writeFile(t, "req.yaml", scenarioA)

	if _, err := execute(t, "decide", "--factors", "retina_scan"); err == nil {
		t.Fatal("expected unknown factor error")
	}
	out, err := execute(t, "decide", "-i", req, "--factors", "password")
	if err != nil {
		t.Fatalf("expected only password to be requested, got %v", err)
	}
	if strings.Contains(out, "geolocation") {
		t.Errorf("expected geolocation to be left out, got:\n%s", out)
	}

	out, err = execute(t, "decide", "-i", req)
	if err != nil {
		t.Fatalf("expected decide without --factors to succeed, got %v", err)
	}
	if !strings.Contains(out, "geolocation") {
		t.Errorf("expected request factors to be used again, got:\n%s", out)
	}
}

func TestDecideJSONWithAudit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	req := writeFile(t, "req.yaml", scenarioA)
	logPath := filepath.Join(t.TempDir(), "decisions.jsonl")

	out, err := execute(t, "decide", "-i", req, "-f", "json", "--audit-log", logPath)
	if err != nil {
		t.Fatal(err)
	}
	var resp wire.DecideResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("expected JSON decision, got %q", out)
	}
	if len(resp.Solutions) != 1 || resp.RequestID == "" {
		t.Errorf("unexpected decision %+v", resp)
	}

	out, err = execute(t, "audit", "verify", logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "OK: 1 entries verified") {
		t.Errorf("unexpected verify output %q", out)
	}

	out, err = execute(t, "audit", "tail", logPath, "-f", "json", "--outcome", "selected")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, resp.RequestID) {
		t.Errorf("expected tail to include request %s, got:\n%s", resp.RequestID, out)
	}
}

func TestAuditVerifyTampered(t *testing.T) {
	path := writeFile(t, "decisions.jsonl", `{"ts":"x","request_id":"a","prev_hash":"sha256:bogus"}`+"\n")
	if _, err := execute(t, "audit", "verify", path); err == nil {
		t.Fatal("expected verify to fail on broken chain")
	}
}

func TestDecideWithProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := execute(t, "decide", "--profile", "office")
	if err != nil {
		t.Fatalf("decide failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Solutions: 63") {
		t.Errorf("expected 63 solutions for the office profile, got:\n%s", out)
	}
}

func TestDecideModalitiesWithProfile(t *testing.T) {
	tests := []struct {
		profile  string
		wantErr  bool
		contains []string
	}{
		{
			profile: "office",
			contains: []string{
				"Outcome:  selected",
				"facial_modality",
				"Intrusiveness=8.2 outside [0, 5]",
				"Solutions: 3",
				"ip_continuity + password",
			},
		},
		{
			profile: "cafe",
			wantErr: true,
			contains: []string{
				"Accuracy=3.7 outside [8, 10]",
				"Intrusiveness=10 outside [0, 5]",
				"Privacy=6 outside [7, 10]",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			out, err := execute(t, "decide", "--profile", tt.profile,
				"--factors", "ip_continuity,facial_modality,password")
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "no_eligible_factor") {
					t.Fatalf("expected no_eligible_factor error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("decide failed: %v\n%s", err, out)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out)
				}
			}
		})
	}
}

func TestDecideRemote(t *testing.T) {
	svc, err := service.New(service.Config{PolicyPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(svc, server.Config{})
	go srv.ServeOn(lis)
	defer srv.GracefulStop()

	req := writeFile(t, "req.yaml", scenarioA)
	out, err := execute(t, "decide", "-i", req, "--remote", lis.Addr().String())
	if err != nil {
		t.Fatalf("remote decide failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1. password") {
		t.Errorf("expected password solution, got:\n%s", out)
	}

	out, err = execute(t, "derive", "--remote", lis.Addr().String(), "-f", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"Security"`) {
		t.Errorf("expected constraints in JSON, got %s", out)
	}
}

func TestDerive(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	req := writeFile(t, "req.yaml", "context:\n  recent_failed_attempts: 3\n")

	out, err := execute(t, "derive", "-i", req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "recent_failed_attempts=3 > 2") {
		t.Errorf("expected adjustment reason, got:\n%s", out)
	}
	if !strings.Contains(out, "Security       [8, 10]") {
		t.Errorf("expected raised Security range, got:\n%s", out)
	}
}

func TestDeriveFromStdin(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(`{"context": {"request_security_rating": "high"}}`))
	rootCmd.SetArgs([]string{"derive", "-i", "-"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "request_security_rating=high") {
		t.Errorf("expected rating adjustment, got:\n%s", out.String())
	}
}

func TestValidate(t *testing.T) {
	good := writeFile(t, "policy.yaml", `
rules:
  - name: strong-needs-accuracy
    condition: "Security >= 9"
    constraints:
      Accuracy: ">= 9"
solver:
  backend: gophersat
alerts:
  - url: https://hooks.example.com/mfa
    events: [failed]
`)
	out, err := execute(t, "validate", good)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Policy is valid.", "Rules:          1", "Alerts:         1", "gophersat", "sha256:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got:\n%s", want, out)
		}
	}

	bad := writeFile(t, "bad.yaml", "rules:\n  - condition: \"Security ~ 3\"\n")
	if _, err := execute(t, "validate", bad); err == nil {
		t.Error("expected validate to reject a malformed rule")
	}
}

func TestFactors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := execute(t, "factors")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 11 {
		t.Fatalf("expected 11 factors, got %d:\n%s", len(lines), out)
	}
	if lines[0] != "* battery_information" {
		t.Errorf("expected default factor marker, got %q", lines[0])
	}
	if lines[1] != "  facial_modality" {
		t.Errorf("expected facial_modality outside the default list, got %q", lines[1])
	}
}

func TestCheckBundledScenarios(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := execute(t, "check", "--scenario", "../../scenarios/*.yaml")
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "PASS") {
		t.Errorf("expected PASS line, got:\n%s", out)
	}
}

func TestCheckFailingScenario(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeFile(t, "fail.yaml", `
name: wrong expectation
cases:
  - name: password only
    scores:
      password: {Security: 8, Intrusiveness: 5, Privacy: 6}
    expect_outcome: no_eligible_factor
`)
	out, err := execute(t, "check", "--scenario", path)
	if err == nil {
		t.Fatal("expected check to fail")
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("expected FAIL line, got:\n%s", out)
	}
}

func TestInitPolicy(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if _, err := execute(t, "init-policy"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(home, ".factorwatch", "policy.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("policy.yaml not created: %v", err)
	}
	if !strings.Contains(string(data), "solver:") {
		t.Error("policy.yaml missing solver section")
	}

	if _, err := execute(t, "init-policy"); err == nil {
		t.Error("expected refusal to overwrite without --force")
	}
	if _, err := execute(t, "init-policy", "--force"); err != nil {
		t.Errorf("expected --force to overwrite, got %v", err)
	}

	// The generated file is itself a valid policy.
	if _, err := execute(t, "validate", path); err != nil {
		t.Errorf("expected generated policy to validate, got %v", err)
	}
}

func TestProfileCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := execute(t, "profile", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "office") || !strings.Contains(out, "cafe") {
		t.Errorf("expected built-in profiles, got:\n%s", out)
	}

	out, err = execute(t, "profile", "show", "office")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "location: office") {
		t.Errorf("expected office environment, got:\n%s", out)
	}

	if _, err := execute(t, "profile", "init", "lab"); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "profile", "check", "lab")
	if err != nil {
		t.Fatalf("expected generated profile to check cleanly: %v", err)
	}
	if !strings.Contains(out, `"lab" is valid`) {
		t.Errorf("unexpected check output %q", out)
	}

	if _, err := execute(t, "profile", "init", "lab"); err == nil {
		t.Error("expected refusal to overwrite existing profile")
	}
}

func TestDiff(t *testing.T) {
	old := writeFile(t, "old.yaml", "solver:\n  backend: gini\n")
	new := writeFile(t, "new.yaml", "constraints:\n  base:\n    Security: {min: 8, max: 10}\nsolver:\n  backend: gophersat\n")

	out, err := execute(t, "diff", old, new)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"base.Security:", "[6, 10] → [8, 10]", "(stricter)", "gini → gophersat"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestInitService(t *testing.T) {
	out, err := execute(t, "init-service", "--profile", "office", "--port", "6000")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"serve --policy /etc/factorwatch/policy.yaml --port 6000", "--profile office", "[Install]"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in unit:\n%s", want, out)
		}
	}

	path := filepath.Join(t.TempDir(), "factorwatch.service")
	if _, err := execute(t, "init-service", "-o", path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected unit file written: %v", err)
	}
}
