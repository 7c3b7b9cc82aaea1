package lifecycle

import (
	"fmt"

	"equiprent/internal/domain"
	"equiprent/internal/models"
)

// rule describes who may move a booking into a status.
type rule func(b *models.Booking, actor models.Actor) bool

func byOwner(b *models.Booking, actor models.Actor) bool {
	return actor.ID != "" && actor.ID == b.OwnerID
}

// transitions lists every permitted move. Anything absent is invalid.
var transitions = map[models.Status]map[models.Status]rule{
	models.StatusRequested: {
		models.StatusAccepted: byOwner,
		models.StatusRejected: byOwner,
	},
}

// Check fails with ErrInvalidTransition unless current -> target is listed.
func Check(current, target models.Status) error {
	if _, ok := transitions[current][target]; !ok {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, target)
	}
	return nil
}

// Authorize checks the transition and then the actor.
// A terminal booking reports ErrInvalidTransition for every actor.
func Authorize(b *models.Booking, actor models.Actor, target models.Status) error {
	if err := Check(b.Status, target); err != nil {
		return err
	}
	if !transitions[b.Status][target](b, actor) {
		return fmt.Errorf("%w: actor %s cannot move booking %s to %s", domain.ErrForbidden, actor.ID, b.ID, target)
	}
	return nil
}

// Targets returns the statuses reachable from current.
func Targets(current models.Status) []models.Status {
	out := make([]models.Status, 0, len(transitions[current]))
	for _, s := range []models.Status{models.StatusAccepted, models.StatusRejected} {
		if _, ok := transitions[current][s]; ok {
			out = append(out, s)
		}
	}
	return out
}
