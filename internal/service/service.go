// Package service owns the live decision engine behind every transport:
// policy and profile loading, the audit log, and atomic reloads.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/thejerf/abtime"
	"go.uber.org/zap"

	"github.com/ppiankov/factorwatch/internal/alert"
	"github.com/ppiankov/factorwatch/internal/audit"
	"github.com/ppiankov/factorwatch/internal/derive"
	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/factor"
	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/policy"
	"github.com/ppiankov/factorwatch/internal/profile"
)

// Selector is what transports need from the service.
type Selector interface {
	Decide(ctx context.Context, req engine.Request) (*engine.Decision, error)
	Derive(req engine.Request) (model.Constraints, []derive.Adjustment)
	Factors() []string
}

// Config holds service configuration.
type Config struct {
	PolicyPath   string
	ProfileName  string
	AuditLogPath string
	Logger       *zap.Logger
	Clock        abtime.AbstractTime
	Registry     *factor.Registry
}

// Service is safe for concurrent use. Reload swaps the engine; requests
// already running keep the snapshot they started with.
type Service struct {
	mu      sync.RWMutex
	eng     *engine.Engine
	prof    *profile.Profile
	hash    string
	version int

	auditLog *audit.Log
	alerts   *alert.Dispatcher
	cfg      Config
	logger   *zap.Logger
}

// New loads the policy and optional profile and opens the audit log.
func New(cfg Config) (*Service, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = factor.Builtin()
	}

	s := &Service{cfg: cfg, logger: cfg.Logger}
	if cfg.AuditLogPath != "" {
		al, err := audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		s.auditLog = al
	}

	if err := s.Reload(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the engine from disk. On failure the previous engine
// stays active.
func (s *Service) Reload() error {
	cfg, hash, err := policy.LoadConfigWithHash(s.cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to load policy config: %w", err)
	}

	var prof *profile.Profile
	if s.cfg.ProfileName != "" {
		prof, err = profile.Load(s.cfg.ProfileName)
		if err != nil {
			return fmt.Errorf("failed to load profile %q: %w", s.cfg.ProfileName, err)
		}
		cfg = profile.ApplyToPolicy(prof, cfg)
	}

	opts := []engine.Option{
		engine.WithPolicy(cfg, hash),
		engine.WithRegistry(s.cfg.Registry),
		engine.WithLogger(s.logger),
	}
	if s.cfg.Clock != nil {
		opts = append(opts, engine.WithClock(s.cfg.Clock))
	}
	if s.auditLog != nil {
		opts = append(opts, engine.WithRecorder(s.auditLog))
	}
	alerts := alert.NewDispatcher(cfg.Alerts, s.logger)
	if alerts != nil {
		opts = append(opts, engine.WithRecorder(alerts))
	}
	eng, err := engine.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	s.mu.Lock()
	s.eng = eng
	s.alerts = alerts
	s.prof = prof
	s.hash = hash
	s.version++
	version := s.version
	s.mu.Unlock()

	s.logger.Info("policy loaded",
		zap.String("policy_hash", hash),
		zap.String("profile", s.cfg.ProfileName),
		zap.Int("alerts", len(cfg.Alerts)),
		zap.Int("version", version))
	return nil
}

func (s *Service) snapshot() (*engine.Engine, *profile.Profile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng, s.prof
}

func withProfile(p *profile.Profile, req engine.Request) engine.Request {
	if p != nil {
		req.Environment, req.Device, req.Context = p.Bundles(req.Environment, req.Device, req.Context)
	}
	return req
}

// Decide runs one decision on the current engine. Profile bundles fill in
// whatever the request leaves out.
func (s *Service) Decide(ctx context.Context, req engine.Request) (*engine.Decision, error) {
	eng, prof := s.snapshot()
	return eng.Decide(ctx, withProfile(prof, req))
}

// Derive computes constraints only.
func (s *Service) Derive(req engine.Request) (model.Constraints, []derive.Adjustment) {
	eng, prof := s.snapshot()
	return eng.Derive(withProfile(prof, req))
}

// Factors returns the registered factor names.
func (s *Service) Factors() []string {
	return s.cfg.Registry.Names()
}

// PolicyHash returns the hash of the active policy file.
func (s *Service) PolicyHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hash
}

// Version counts successful loads, starting at 1.
func (s *Service) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Close waits for pending alert deliveries and closes the audit log.
func (s *Service) Close() error {
	s.mu.RLock()
	alerts := s.alerts
	s.mu.RUnlock()
	if alerts != nil {
		alerts.Wait()
	}
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}
