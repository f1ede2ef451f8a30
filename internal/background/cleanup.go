package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/velmarket/gateway/internal/auth"
	"github.com/velmarket/gateway/internal/gateway"
	"github.com/velmarket/gateway/internal/repositories"
)

// CleanupManager periodically prunes expired in-memory and persisted state:
// stale rate buckets, expired CSRF tokens, and dead session rows. All sweeps
// are best effort; admission correctness never depends on them.
type CleanupManager struct {
	limiter  *gateway.RateLimiter
	csrf     *auth.CSRFTokenManager
	sessions *repositories.SessionRepository
	interval time.Duration
	logger   *slog.Logger
	done     chan struct{}
}

func NewCleanupManager(
	limiter *gateway.RateLimiter,
	csrf *auth.CSRFTokenManager,
	sessions *repositories.SessionRepository,
	interval time.Duration,
	logger *slog.Logger,
) *CleanupManager {
	return &CleanupManager{
		limiter:  limiter,
		csrf:     csrf,
		sessions: sessions,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the cleanup loop. Call Stop to terminate it.
func (m *CleanupManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.runOnce(ctx)
			case <-ctx.Done():
				return
			case <-m.done:
				return
			}
		}
	}()

	m.logger.Info("cleanup manager started", slog.Duration("interval", m.interval))
}

// Stop terminates the cleanup loop.
func (m *CleanupManager) Stop() {
	close(m.done)
}

func (m *CleanupManager) runOnce(ctx context.Context) {
	buckets := m.limiter.Sweep()
	tokens := m.csrf.Sweep()

	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := m.sessions.CleanupExpired(sweepCtx)
	if err != nil {
		m.logger.Error("session cleanup failed", slog.Any("error", err))
	}

	m.logger.Debug("cleanup pass complete",
		slog.Int("rate_buckets_removed", buckets),
		slog.Int("csrf_tokens_removed", tokens),
		slog.Int64("session_rows_removed", rows),
	)
}
