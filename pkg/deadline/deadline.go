// Package deadline implements the C7 deadline stream: a typed view over the
// coordination store's per-scaler SLA-ordered sorted set (spec §4.7), adding
// horizon-based consumption and deferral on top of the raw
// push/consume/length primitives pkg/coordination provides.
package deadline

import (
	"context"
	"time"

	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// Stream is one scaler-keyed deadline index, read by the scaler's
// consume-deadlines tick (spec §4.8 step 3).
type Stream struct {
	coord *coordination.Client
}

// New builds a Stream over the given coordination client.
func New(coord *coordination.Client) *Stream {
	return &Stream{coord: coord}
}

// Push enqueues one deadline entry, scored by its SLA (spec §4.6.1 step 8 /
// §4.6.3's per-stage job deadlines).
func (s *Stream) Push(ctx context.Context, e models.DeadlineEntry) error {
	return s.coord.PushDeadline(ctx, e)
}

// Length reports how many entries are pending for scaler.
func (s *Stream) Length(ctx context.Context, scaler models.ScalerKind) (int64, error) {
	return s.coord.DeadlineQueueLength(ctx, scaler)
}

// ConsumeDue drains every entry for scaler whose SLA has already elapsed or
// falls within horizon of now, up to limit entries — the scaler's "process
// entries whose SLA has elapsed or lies within the schedule horizon" rule.
// A limit of 0 means no cap.
func (s *Stream) ConsumeDue(ctx context.Context, scaler models.ScalerKind, now time.Time, horizon time.Duration, limit int64) ([]models.DeadlineEntry, error) {
	maxScore := float64(now.Add(horizon).Unix())
	return s.coord.ConsumeDeadlines(ctx, scaler, maxScore, limit)
}

// Remove drops a single pending entry by job id, used when a reaction fails
// or its job is otherwise withdrawn before placement.
func (s *Stream) Remove(ctx context.Context, scaler models.ScalerKind, jobID string) error {
	return s.coord.RemoveDeadline(ctx, scaler, jobID)
}

// Defer requeues entry with a later SLA, the "may requeue with a later SLA
// on deferral" escape hatch readers use when a placement can't proceed yet
// (e.g. no node currently fits).
func (s *Stream) Defer(ctx context.Context, e models.DeadlineEntry, newSLA time.Time) error {
	e.SLA = newSLA
	return s.coord.PushDeadline(ctx, e)
}
