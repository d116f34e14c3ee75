package trip

import (
	"context"
	"errors"
	"strings"

	"loop-drive/internal/domain"
	"loop-drive/internal/rest"
)

// ReasonOther selects the free-text reason.
const ReasonOther = "Other"

// CancelReasons is the fixed list presented to the driver.
var CancelReasons = []string{
	"Rider is taking too long",
	"Rider is behaving inappropriately",
	"Accidentally accepted this ride",
	"Pickup location is unsafe",
	"Vehicle issue or emergency",
	"Unable to reach rider",
	ReasonOther,
}

var (
	ErrReasonRequired = errors.New("please select a reason")
	ErrCustomRequired = errors.New("please enter your reason")
)

// ResolveCancelReason validates the picked option and resolves the
// free-text variant. Submission always needs a non-empty reason.
func ResolveCancelReason(selected, custom string) (string, error) {
	if selected == "" {
		return "", ErrReasonRequired
	}
	if selected != ReasonOther {
		return selected, nil
	}
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return "", ErrCustomRequired
	}
	return custom, nil
}

// Cancel submits a driver-initiated cancellation. There is no local-only
// cancel: the phase moves only after the backend ack, and a failed ack
// leaves everything exactly as it was.
func (m *Machine) Cancel(ctx context.Context, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	return m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		if m.offer == nil {
			m.mu.Unlock()
			return ErrNoOffer
		}
		switch m.phase {
		case domain.PhaseOffered, domain.PhaseAssigned, domain.PhaseOnRoute:
		default:
			m.mu.Unlock()
			return ErrWrongPhase
		}
		offer := *m.offer
		riderPicked := m.phase == domain.PhaseOnRoute
		m.mu.Unlock()

		err := m.backend.CancelTrip(ctx, &rest.CancelTripRequest{
			DriverID:      m.driverID,
			RiderID:       offer.RiderID,
			TripID:        offer.TripID,
			Reason:        reason,
			IsRiderPicked: riderPicked,
		})
		if err != nil {
			return err
		}

		m.slogger.Info("trip cancelled by driver", "trip_id", offer.TripID, "reason", reason)
		m.reset()
		if m.hooks.OnReload != nil {
			m.hooks.OnReload()
		}
		return nil
	})
}
