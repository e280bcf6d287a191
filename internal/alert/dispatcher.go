package alert

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/factorwatch/internal/audit"
)

// Dispatcher fans out decision events to matching webhook configurations.
// It satisfies the engine's recorder interface.
type Dispatcher struct {
	configs []Config
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, logger *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Dispatch sends the event to all webhooks whose Events list names its
// outcome. Sends run in goroutines and never block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	for _, cfg := range d.configs {
		if !contains(cfg.Events, event.Outcome) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(context.Background(), cfg, event); err != nil {
				d.logger.Warn("alert delivery failed",
					zap.String("url", cfg.URL),
					zap.String("request_id", event.RequestID),
					zap.Error(err))
			}
		}(cfg)
	}
}

// Record dispatches an event for the entry. Delivery errors are logged,
// never returned.
func (d *Dispatcher) Record(entry audit.Entry) error {
	d.Dispatch(EventFrom(entry))
	return nil
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
