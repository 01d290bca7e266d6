package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = time.Hour

// StartTokenSweeper periodically purges expired tokens until ctx is cancelled.
func (s *Service) StartTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("purge expired tokens failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("count", n).Msg("purged expired tokens")
			}
		}
	}
}

// PurgeExpired deletes expired tokens and returns how many were removed.
// Cached entries expire on their own TTL.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
