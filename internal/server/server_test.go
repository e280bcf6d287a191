package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/service"
	"github.com/ppiankov/factorwatch/internal/wire"
)

// testServer spins up an in-process gRPC server on a random port and returns a connection.
func testServer(t *testing.T, policyPath string) (*grpc.ClientConn, *service.Service, func()) {
	t.Helper()

	if policyPath == "" {
		policyPath = filepath.Join(t.TempDir(), "absent.yaml")
	}
	svc, err := service.New(service.Config{PolicyPath: policyPath, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	srv := New(svc, Config{Logger: zaptest.NewLogger(t)})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.ServeOn(lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("dial: %v", err)
	}

	cleanup := func() {
		conn.Close()
		srv.GracefulStop()
		svc.Close()
	}
	return conn, svc, cleanup
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func decide(t *testing.T, client SelectionServiceClient, req engine.Request) (wire.DecideResponse, error) {
	t.Helper()
	in, err := wire.ToStruct(req)
	if err != nil {
		t.Fatal(err)
	}
	out, err := client.Decide(context.Background(), in)
	if err != nil {
		return wire.DecideResponse{}, err
	}
	var resp wire.DecideResponse
	if err := wire.FromStruct(out, &resp); err != nil {
		t.Fatal(err)
	}
	return resp, nil
}

func twoStrong() engine.Request {
	return engine.Request{Scores: map[string]model.Scores{
		"password":    {model.AttrSecurity: 8, model.AttrIntrusiveness: 5, model.AttrPrivacy: 6},
		"fingerprint": {model.AttrSecurity: 9, model.AttrIntrusiveness: 2, model.AttrPrivacy: 8, model.AttrAccuracy: 7},
	}}
}

func TestDecideSelected(t *testing.T) {
	conn, _, cleanup := testServer(t, "")
	defer cleanup()

	resp, err := decide(t, NewSelectionServiceClient(conn), twoStrong())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if resp.Outcome != engine.OutcomeSelected {
		t.Errorf("expected selected, got %s", resp.Outcome)
	}
	if len(resp.Solutions) != 3 {
		t.Errorf("expected 3 solutions, got %v", resp.Solutions)
	}
	if resp.RequestID == "" {
		t.Error("expected request ID")
	}
	if resp.Error != "" {
		t.Errorf("expected no error, got %s", resp.Error)
	}
}

func TestDecideNoEligibleIsNotAnRPCError(t *testing.T) {
	conn, _, cleanup := testServer(t, "")
	defer cleanup()

	resp, err := decide(t, NewSelectionServiceClient(conn), engine.Request{Scores: map[string]model.Scores{
		"geolocation": {model.AttrSecurity: 5, model.AttrAccuracy: 2},
	}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if resp.Outcome != engine.OutcomeNoEligible || resp.Error == "" {
		t.Errorf("expected no_eligible_factor with error, got %s %q", resp.Outcome, resp.Error)
	}
	if len(resp.Excluded) != 1 || resp.Excluded[0].Attribute != model.AttrAccuracy {
		t.Errorf("expected Accuracy exclusion, got %+v", resp.Excluded)
	}
}

func TestDecideUnknownFactorIsInvalidArgument(t *testing.T) {
	conn, _, cleanup := testServer(t, "")
	defer cleanup()

	_, err := decide(t, NewSelectionServiceClient(conn), engine.Request{Factors: []string{"retina"}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestDerive(t *testing.T) {
	conn, _, cleanup := testServer(t, "")
	defer cleanup()

	in, _ := wire.ToStruct(engine.Request{Context: model.Bundle{"recent_failed_attempts": 5}})
	out, err := NewSelectionServiceClient(conn).Derive(context.Background(), in)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	var resp wire.DeriveResponse
	if err := wire.FromStruct(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Constraints[model.AttrSecurity] != model.R(8, 10) {
		t.Errorf("expected Security [8, 10], got %s", resp.Constraints[model.AttrSecurity])
	}
}

func TestHealth(t *testing.T) {
	conn, _, cleanup := testServer(t, "")
	defer cleanup()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", resp.Status)
	}
}

func TestConcurrentDecisions(t *testing.T) {
	conn, _, cleanup := testServer(t, "")
	defer cleanup()
	client := NewSelectionServiceClient(conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := decide(t, client, twoStrong())
			if err != nil {
				t.Errorf("Decide: %v", err)
				return
			}
			if len(resp.Solutions) != 3 {
				t.Errorf("expected 3 solutions, got %d", len(resp.Solutions))
			}
		}()
	}
	wg.Wait()
}

func TestHotReloadPolicyChange(t *testing.T) {
	policyPath := writeTempFile(t, "policy.yaml", "factors: [password]\n")
	conn, svc, cleanup := testServer(t, policyPath)
	defer cleanup()
	client := NewSelectionServiceClient(conn)

	resp, err := decide(t, client, twoStrong())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Solutions) != 3 {
		t.Fatalf("expected 3 solutions before reload, got %d", len(resp.Solutions))
	}

	if err := os.WriteFile(policyPath, []byte("combinations:\n  excludes:\n    - {a: password, b: fingerprint}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	resp, err = decide(t, client, twoStrong())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Solutions) != 2 {
		t.Errorf("expected 2 solutions after reload, got %v", resp.Solutions)
	}
}

type countingReloader struct {
	n atomic.Int32
}

func (c *countingReloader) Reload() error {
	c.n.Add(1)
	return nil
}

func TestReloaderSkipsMissingPaths(t *testing.T) {
	policyPath := writeTempFile(t, "policy.yaml", "factors: [password]\n")
	r := NewReloader(&countingReloader{}, []string{"", policyPath, "/nonexistent/policy.yaml"}, nil)
	if len(r.Paths()) != 1 || r.Paths()[0] != policyPath {
		t.Errorf("expected only existing path watched, got %v", r.Paths())
	}
}

func TestReloaderTriggersOnWrite(t *testing.T) {
	policyPath := writeTempFile(t, "policy.yaml", "factors: [password]\n")
	target := &countingReloader{}
	r := NewReloader(target, []string{policyPath}, zaptest.NewLogger(t))
	r.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for target.n.Load() == 0 && time.Now().Before(deadline) {
		// Keep writing until the watcher is registered and the debounce fires.
		if err := os.WriteFile(policyPath, []byte("factors: [fingerprint]\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if target.n.Load() == 0 {
		t.Error("expected reload after write")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("reloader did not stop after cancel")
	}
}
