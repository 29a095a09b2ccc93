// Package cleanup runs the retention sweep: periodically purging result
// rows, reaction status-log entries, and stdout/stderr log chunks past
// their configured retention window (pkg/config.RetentionConfig). Grounded
// on tarsy's pkg/cleanup/service.go ticker+cancel idiom, retargeted from
// session/event retention to the results/status-log/reaction-log tables
// this platform actually has.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/metadata"
)

// Service periodically enforces retention policies:
//   - Deletes result rows older than ResultRetention
//   - Deletes status-log and stdout/stderr log rows for terminal reactions
//     older than StatusLogRetention
//
// All operations are idempotent and safe to run from multiple pods: each
// sweep just re-evaluates the same age cutoffs against current data.
type Service struct {
	config   *config.RetentionConfig
	meta     *metadata.Client
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention sweep service. interval controls how
// often the sweep runs; it is independent of the retention windows
// themselves.
func NewService(cfg *config.RetentionConfig, meta *metadata.Client, interval time.Duration) *Service {
	return &Service{
		config:   cfg,
		meta:     meta,
		interval: interval,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("retention sweep started",
		"result_retention", s.config.ResultRetention,
		"status_log_retention", s.config.StatusLogRetention,
		"interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("retention sweep stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	if n, err := s.meta.PurgeResultsOlderThan(ctx, time.Now().Add(-s.config.ResultRetention)); err != nil {
		slog.Error("retention: purge old results failed", "error", err)
	} else if n > 0 {
		slog.Info("retention: purged old results", "count", n)
	}

	if n, err := s.meta.PurgeStatusLogOlderThan(ctx, time.Now().Add(-s.config.StatusLogRetention)); err != nil {
		slog.Error("retention: purge old status log rows failed", "error", err)
	} else if n > 0 {
		slog.Info("retention: purged old status log rows", "count", n)
	}

	if n, err := s.meta.PurgeReactionLogsOlderThan(ctx, time.Now().Add(-s.config.StatusLogRetention)); err != nil {
		slog.Error("retention: purge old reaction log rows failed", "error", err)
	} else if n > 0 {
		slog.Info("retention: purged old reaction log rows", "count", n)
	}
}
