package service

import (
	"context"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// SeatReclamation frees seats still held for showtimes that have ended
type SeatReclamation struct {
	catalog Catalog
	ledger  SeatLedger
	events  EventPublisher
	now     Clock
	logger  *zap.Logger
}

// NewSeatReclamation creates a new reclamation sweep
func NewSeatReclamation(catalog Catalog, ledger SeatLedger, events EventPublisher, now Clock) *SeatReclamation {
	if now == nil {
		now = time.Now
	}
	return &SeatReclamation{
		catalog: catalog,
		ledger:  ledger,
		events:  events,
		now:     now,
		logger:  util.GetLogger(),
	}
}

// Sweep releases every BOOKED seat of today's showtimes whose end time has
// passed. A failing showtime is logged and skipped. It returns the number of
// seats reset.
func (sr *SeatReclamation) Sweep(ctx context.Context) (int64, error) {
	ctx, span := util.StartSpan(ctx, "SeatReclamation.Sweep")
	defer span.End()

	now := sr.now()
	clock := now.Format(models.TimeLayout)

	showtimes, err := sr.catalog.FindFinishedShowtimes(ctx, dateOf(now), clock)
	if err != nil {
		util.ReclamationRunsTotal.WithLabelValues("error").Inc()
		return 0, apperr.Internal(err, "failed to find finished showtimes")
	}

	var total int64
	swept := make([]int64, 0, len(showtimes))
	for _, st := range showtimes {
		n, err := sr.ledger.ReleaseShowtime(ctx, st.ID)
		if err != nil {
			sr.logger.Error("Failed to reclaim seats of showtime",
				zap.Int64("showtime_id", st.ID),
				zap.Error(err))
			continue
		}
		swept = append(swept, st.ID)
		total += n
	}

	util.ReclamationRunsTotal.WithLabelValues("ok").Inc()
	if total == 0 {
		return 0, nil
	}

	util.SeatsReleasedTotal.WithLabelValues("reclamation").Add(float64(total))
	sr.logger.Info("Reclaimed seats of finished showtimes",
		zap.Int64("seats_reset", total),
		zap.Int64s("showtime_ids", swept),
		zap.String("at", clock))

	event := &models.SeatsReclaimedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeSeatsReclaimed, now),
		ShowtimeIDs: swept,
		SeatsReset:  total,
	}
	if err := sr.events.PublishSeatsReclaimed(ctx, event); err != nil {
		sr.logger.Error("Failed to publish SeatsReclaimed event", zap.Error(err))
	}

	return total, nil
}

// RunNow triggers a sweep on behalf of an admin
func (sr *SeatReclamation) RunNow(ctx context.Context, identity models.Identity) (int64, error) {
	if !identity.IsAdmin() {
		return 0, apperr.Forbidden("only admins can trigger seat reclamation")
	}

	sr.logger.Info("Manual seat reclamation triggered", zap.Int64("by", identity.CustomerID))
	return sr.Sweep(ctx)
}
