package availability

import (
	"context"
	"sort"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/metrics"
	"equiprent/internal/models"

	"github.com/rs/zerolog"
)

// ActiveSet is the list of requested and accepted bookings of one equipment.
type ActiveSet struct {
	EquipmentID string
	Bookings    []*models.Booking
}

// Conflicts returns the active bookings overlapping candidate, skipping excludingID.
func (s ActiveSet) Conflicts(candidate models.Interval, excludingID string) []*models.Booking {
	var out []*models.Booking
	for _, b := range s.Bookings {
		if b.ID == excludingID || !b.Status.IsActive() {
			continue
		}
		if b.Interval.Overlaps(candidate) {
			out = append(out, b)
		}
	}
	return out
}

func (s ActiveSet) IsAvailable(candidate models.Interval, excludingID string) bool {
	return len(s.Conflicts(candidate, excludingID)) == 0
}

func (s ActiveSet) Intervals() []models.Interval {
	out := make([]models.Interval, 0, len(s.Bookings))
	for _, b := range s.Bookings {
		out = append(out, b.Interval)
	}
	return out
}

// Index answers availability questions from the store. It holds no state of its own;
// the optional cache only serves Snapshot reads.
type Index struct {
	cache  domain.ActiveSetCache
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewIndex(cache domain.ActiveSetCache, ttl time.Duration, logger *zerolog.Logger) *Index {
	if ttl <= 0 {
		ttl = models.DefaultActiveCacheTTL
	}
	return &Index{cache: cache, ttl: ttl, logger: logger}
}

// Rebuild reads the active set of equipmentID from q, ordered by start.
func (ix *Index) Rebuild(ctx context.Context, q domain.ActiveQuerier, equipmentID string) (ActiveSet, error) {
	bookings, err := q.FindByEquipment(ctx, equipmentID, models.ActiveStatuses)
	if err != nil {
		return ActiveSet{}, err
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].Interval.Start().Before(bookings[j].Interval.Start())
	})
	return ActiveSet{EquipmentID: equipmentID, Bookings: bookings}, nil
}

// IsAvailable reports whether candidate is free on equipmentID, ignoring excludingID.
// It always reads q, so callers holding the equipment lock see the committed state.
func (ix *Index) IsAvailable(ctx context.Context, q domain.ActiveQuerier, equipmentID string, candidate models.Interval, excludingID string) (bool, error) {
	set, err := ix.Rebuild(ctx, q, equipmentID)
	if err != nil {
		return false, err
	}
	return set.IsAvailable(candidate, excludingID), nil
}

// Snapshot serves the active set for display, going through the cache when one is set.
func (ix *Index) Snapshot(ctx context.Context, q domain.ActiveQuerier, equipmentID string) (ActiveSet, error) {
	if ix.cache == nil {
		return ix.Rebuild(ctx, q, equipmentID)
	}

	gen, err := ix.cache.Generation(ctx, equipmentID)
	if err != nil {
		metrics.IncActiveCache("error")
		ix.logger.Warn().Err(err).Str("equipment_id", equipmentID).Msg("active cache unavailable, reading store")
		return ix.Rebuild(ctx, q, equipmentID)
	}

	cached, err := ix.cache.Get(ctx, equipmentID)
	switch {
	case err != nil:
		metrics.IncActiveCache("error")
		ix.logger.Warn().Err(err).Str("equipment_id", equipmentID).Msg("active cache read failed")
	case cached != nil && cached.Generation == gen:
		metrics.IncActiveCache("hit")
		return ActiveSet{EquipmentID: equipmentID, Bookings: cached.Bookings}, nil
	case cached != nil:
		metrics.IncActiveCache("stale")
	default:
		metrics.IncActiveCache("miss")
	}

	set, err := ix.Rebuild(ctx, q, equipmentID)
	if err != nil {
		return ActiveSet{}, err
	}
	// gen was read before the store, so a write committed meanwhile makes this entry stale.
	if err := ix.cache.Set(ctx, equipmentID, &domain.CachedActiveSet{Generation: gen, Bookings: set.Bookings}, ix.ttl); err != nil {
		ix.logger.Warn().Err(err).Str("equipment_id", equipmentID).Msg("active cache write failed")
	}
	return set, nil
}

// Invalidate must be called after every committed status-changing write.
func (ix *Index) Invalidate(ctx context.Context, equipmentID string) {
	if ix.cache == nil {
		return
	}
	if err := ix.cache.Invalidate(ctx, equipmentID); err != nil {
		ix.logger.Error().Err(err).Str("equipment_id", equipmentID).Msg("active cache invalidation failed")
	}
}
