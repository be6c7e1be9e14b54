// Package local connects scheduler events to the settlement archives.
package local

import (
	"context"
	"time"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/pkg/logger"
)

// EventPublisher forwards round events outside the process
type EventPublisher interface {
	Publish(ctx context.Context, e domain.RoundEvent) error
}

// RoundRecorder listens to scheduler events and writes settled rounds to
// every archive. It runs on the event goroutine, never on the tick.
type RoundRecorder struct {
	archives  []domain.RoundArchive
	publisher EventPublisher
	timeout   time.Duration
}

// NewRoundRecorder creates a recorder. publisher may be nil.
func NewRoundRecorder(publisher EventPublisher, archives ...domain.RoundArchive) *RoundRecorder {
	return &RoundRecorder{
		archives:  archives,
		publisher: publisher,
		timeout:   5 * time.Second,
	}
}

// HandleEvent is a scheduler event handler
func (r *RoundRecorder) HandleEvent(e domain.RoundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx = logger.WithRound(ctx, string(e.Mode), e.RoundID)

	if e.Type == domain.EventRoundSettled && e.Settlement != nil {
		for _, a := range r.archives {
			if err := a.SaveSettlement(ctx, e.Settlement); err != nil {
				logger.Error(ctx).
					Err(err).
					Int("wagers", len(e.Settlement.Wagers)).
					Msg("Failed to archive settlement")
			}
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, e); err != nil {
			logger.Warn(ctx).Err(err).Str("event", string(e.Type)).Msg("Failed to publish round event")
		}
	}
}
