package client

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/server"
	"github.com/ppiankov/factorwatch/internal/service"
)

// startTestServer creates a server and returns its address.
func startTestServer(t *testing.T) (string, func()) {
	t.Helper()

	svc, err := service.New(service.Config{PolicyPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	srv := server.New(svc, server.Config{})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.ServeOn(lis)

	cleanup := func() {
		srv.GracefulStop()
		svc.Close()
	}
	return lis.Addr().String(), cleanup
}

func TestClientDecide(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	c, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	resp, err := c.Decide(context.Background(), engine.Request{Scores: map[string]model.Scores{
		"password":    {model.AttrSecurity: 8, model.AttrIntrusiveness: 5, model.AttrPrivacy: 6},
		"geolocation": {model.AttrSecurity: 5, model.AttrIntrusiveness: 3, model.AttrPrivacy: 5, model.AttrAccuracy: 2},
	}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(resp.Solutions) != 1 || resp.Solutions[0].Key() != "password" {
		t.Errorf("expected [{password}], got %v", resp.Solutions)
	}
}

func TestClientDecideWithBuiltinFactors(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	c, err := New(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := c.Decide(context.Background(), engine.Request{Factors: []string{"password", "fingerprint"}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	// Without a fingerprint sensor, fingerprint scores Security 5.
	if len(resp.Solutions) != 1 || resp.Solutions[0].Key() != "password" {
		t.Errorf("expected [{password}], got %v", resp.Solutions)
	}
}

func TestClientUnknownFactor(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	c, err := New(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.Decide(context.Background(), engine.Request{Factors: []string{"retina"}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestClientDerive(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	c, err := New(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := c.Derive(context.Background(), engine.Request{Context: model.Bundle{"request_security_rating": "high"}})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if resp.Constraints[model.AttrAccuracy] != model.R(8, 10) {
		t.Errorf("expected Accuracy [8, 10], got %s", resp.Constraints[model.AttrAccuracy])
	}
}

func TestClientUnreachableServer(t *testing.T) {
	c, err := New("127.0.0.1:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	c.Timeout = 500 * time.Millisecond

	if _, err := c.Decide(context.Background(), engine.Request{}); err == nil {
		t.Error("expected error for unreachable server")
	}
}
