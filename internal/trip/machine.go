package trip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loop-drive/internal/domain"
	"loop-drive/internal/rest"
	"loop-drive/internal/stream"
)

// rehydrated offers carry an advisory expiry this far in the future
const rehydratedOfferTTL = 15 * time.Minute

var (
	ErrNoOffer    = errors.New("no trip offer is active")
	ErrWrongPhase = errors.New("operation not allowed in current phase")
)

// Backend is the slice of the REST client the machine drives.
type Backend interface {
	AcceptTrip(ctx context.Context, driverID, tripID string) error
	CheckDriverTripStatus(ctx context.Context) (*rest.DriverTripStatusResponse, error)
	ActiveTrip(ctx context.Context, tripID string) (*rest.ActiveTrip, error)
	ConfirmPickup(ctx context.Context, req *rest.TripPartiesRequest) error
	ConfirmDropoff(ctx context.Context, req *rest.TripPartiesRequest) error
	CancelTrip(ctx context.Context, req *rest.CancelTripRequest) error
}

// Sender pushes outbound events onto the channel (drops when offline).
type Sender interface {
	Send(v any)
}

// Hooks are the machine's outward edges. All are optional.
type Hooks struct {
	// OnDestination fires when the routed destination changes; nil point
	// clears the route.
	OnDestination func(pt *domain.LatLng)
	// OnOfferActive fires when a trip offer is bound (true, on accept or
	// rehydration) or released (false).
	OnOfferActive func(active bool)
	// OnReload requests a full session reload: every dependent timer and
	// listener is torn down and state is rebuilt from polling.
	OnReload func()
}

type action struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// Machine owns the authoritative "what trip, if any, is this driver
// doing" answer. Stream events, poll results and user actions are all
// serialized onto one run loop; the loop's only suspension points are
// the backend calls themselves.
type Machine struct {
	slogger   *slog.Logger
	driverID  string
	backend   Backend
	sender    Sender
	hooks     Hooks
	pollEvery time.Duration

	events  chan any
	actions chan action

	mu    sync.Mutex
	phase domain.TripPhase
	offer *domain.TripOffer

	expiryC <-chan time.Time
	expiry  *time.Timer
}

func NewMachine(slogger *slog.Logger, driverID string, backend Backend, sender Sender, hooks Hooks, pollEvery time.Duration) *Machine {
	return &Machine{
		slogger:   slogger,
		driverID:  driverID,
		backend:   backend,
		sender:    sender,
		hooks:     hooks,
		pollEvery: pollEvery,
		events:    make(chan any, 16),
		actions:   make(chan action),
		phase:     domain.PhaseNone,
	}
}

// SetSender wires the outbound channel after construction (the conn and
// the machine reference each other). Must be called before Run.
func (m *Machine) SetSender(sender Sender) {
	m.sender = sender
}

// Phase is safe from any goroutine.
func (m *Machine) Phase() domain.TripPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// ActiveOffer returns a copy of the current offer, nil when none.
func (m *Machine) ActiveOffer() *domain.TripOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offer == nil {
		return nil
	}
	cp := *m.offer
	return &cp
}

// HandleTripRequest implements stream.Handler. Runs on the stream reader
// goroutine, so it only enqueues.
func (m *Machine) HandleTripRequest(ev *stream.TripRequestEvent) {
	select {
	case m.events <- ev:
	default:
		m.slogger.Warn("trip event queue full, dropping", "trip_id", ev.TripID)
	}
}

// HandleTripCanceledByRider implements stream.Handler.
func (m *Machine) HandleTripCanceledByRider(tripID string) {
	select {
	case m.events <- &stream.TripCanceledEvent{Type: stream.TypeTripCanceledRider, TripID: tripID}:
	default:
		m.slogger.Warn("trip event queue full, dropping cancel", "trip_id", tripID)
	}
}

// Run is the machine's event loop. It rehydrates from polling first —
// the stream is a delta feed and does not survive a reload, so "do I
// have an active trip" is always answered by the backend.
func (m *Machine) Run(ctx context.Context) {
	m.poll(ctx)

	ticker := time.NewTicker(m.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopExpiry()
			return
		case ev := <-m.events:
			m.handleStreamEvent(ev)
		case <-ticker.C:
			m.poll(ctx)
		case <-m.expiryC:
			m.handleExpiry()
		case act := <-m.actions:
			act.reply <- act.fn(act.ctx)
		}
	}
}

func (m *Machine) do(ctx context.Context, fn func(ctx context.Context) error) error {
	act := action{ctx: ctx, fn: fn, reply: make(chan error, 1)}
	select {
	case m.actions <- act:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-act.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) handleStreamEvent(ev any) {
	switch e := ev.(type) {
	case *stream.TripRequestEvent:
		m.handleTripRequest(e)
	case *stream.TripCanceledEvent:
		m.handleRiderCancel(e.TripID)
	}
}

func (m *Machine) handleTripRequest(ev *stream.TripRequestEvent) {
	m.mu.Lock()
	phase := m.phase
	current := m.offer
	m.mu.Unlock()

	if phase != domain.PhaseNone {
		if current != nil && current.TripID == ev.TripID && phase == domain.PhaseOffered {
			// same offer re-pushed: refresh its payload
			offer := ev.Offer()
			m.setOffer(&offer, domain.PhaseOffered)
			m.armExpiry(offer.ExpiresAt)
			return
		}
		m.slogger.Info("trip request ignored, driver busy",
			"trip_id", ev.TripID, "phase", string(phase))
		return
	}

	offer := ev.Offer()
	m.setOffer(&offer, domain.PhaseOffered)
	m.armExpiry(offer.ExpiresAt)
	m.slogger.Info("trip offered", "trip_id", offer.TripID, "rider_id", offer.RiderID)
}

// handleRiderCancel is unconditional: whatever phase the driver is in,
// whatever REST call is in flight, local state resets and the session
// reloads.
func (m *Machine) handleRiderCancel(tripID string) {
	m.slogger.Info("trip canceled by rider", "trip_id", tripID)
	m.reset()
	if m.hooks.OnReload != nil {
		m.hooks.OnReload()
	}
}

func (m *Machine) handleExpiry() {
	m.mu.Lock()
	expired := m.phase == domain.PhaseOffered
	var tripID string
	if m.offer != nil {
		tripID = m.offer.TripID
	}
	m.mu.Unlock()
	if !expired {
		return
	}
	m.slogger.Info("trip offer expired", "trip_id", tripID)
	m.reset()
}

// poll reconciles local state against the REST trip status. The poll is
// authoritative both ways: it rehydrates an active trip the stream never
// delivered, and it clears an assigned trip the backend closed.
func (m *Machine) poll(ctx context.Context) {
	status, err := m.backend.CheckDriverTripStatus(ctx)
	if err != nil {
		m.slogger.Warn("trip status poll failed", "error", err)
		return
	}

	m.mu.Lock()
	phase := m.phase
	offer := m.offer
	m.mu.Unlock()

	if status.Status.Active() && status.TripID != "" {
		if offer == nil {
			m.rehydrate(ctx, status)
		}
		return
	}

	if offer == nil {
		return
	}

	switch phase {
	case domain.PhaseAssigned, domain.PhaseOnRoute:
		// backend closed or dropped the trip out from under us
		m.slogger.Info("poll reports trip closed, clearing local state",
			"trip_id", offer.TripID, "phase", string(phase))
		m.reset()
	case domain.PhaseOffered:
		// a pre-acceptance offer is not tracked by the backend; only a
		// terminal status for the same trip closes it here
		if !status.Status.IsBool && status.TripID == offer.TripID &&
			(status.Status.Status == domain.StatusCompleted || status.Status.Status == domain.StatusCancelled) {
			m.slogger.Info("poll reports offered trip terminal", "trip_id", offer.TripID)
			m.reset()
		}
	}
}

func (m *Machine) rehydrate(ctx context.Context, status *rest.DriverTripStatusResponse) {
	details, err := m.backend.ActiveTrip(ctx, status.TripID)
	if err != nil {
		m.slogger.Warn("active trip fetch failed", "trip_id", status.TripID, "error", err)
		return
	}

	phase := domain.PhaseForStatus(details.Status)
	if !status.Status.IsBool {
		if p := domain.PhaseForStatus(status.Status.Status); p != domain.PhaseNone {
			phase = p
		}
	}
	if phase == domain.PhaseNone {
		// polled trip already terminal, nothing to restore
		return
	}

	offer := &domain.TripOffer{
		TripID:  details.TripID,
		RiderID: details.RiderID,
		Pickup: domain.Stop{
			Point: domain.LatLng{Lat: details.PickupLat, Lng: details.PickupLng},
			Label: details.PickupLocation,
		},
		Dropoff: domain.Stop{
			Point: domain.LatLng{Lat: details.DropoffLat, Lng: details.DropoffLng},
			Label: details.DropoffLocation,
		},
		EstimatedDistanceKm:  details.EstimatedDistanceKm,
		EstimatedDurationMin: details.EstimatedDurationMin,
		EstimatedPrice:       details.EstimatedPrice,
		ExpiresAt:            time.Now().Add(rehydratedOfferTTL),
	}
	m.setOffer(offer, phase)
	m.notifyOfferActive(true)
	dest := offer.Destination(phase)
	m.notifyDestination(&dest)
	m.slogger.Info("trip rehydrated from poll",
		"trip_id", offer.TripID, "phase", string(phase))
}

// Accept confirms the offer with the backend. On failure the machine
// stays Offered and the error surfaces to the caller.
func (m *Machine) Accept(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		if m.phase != domain.PhaseOffered || m.offer == nil {
			m.mu.Unlock()
			return ErrWrongPhase
		}
		offer := *m.offer
		m.mu.Unlock()

		if err := m.backend.AcceptTrip(ctx, m.driverID, offer.TripID); err != nil {
			return err
		}

		m.stopExpiry()
		m.setOffer(&offer, domain.PhaseAssigned)
		m.send(&stream.TripDecisionEvent{Type: stream.TypeTripAccepted, TripID: offer.TripID})
		m.notifyOfferActive(true)
		dest := offer.Pickup.Point
		m.notifyDestination(&dest)
		return nil
	})
}

// Reject declines the offer. Purely local plus an outbound event; no
// REST ack is involved.
func (m *Machine) Reject(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		if m.phase != domain.PhaseOffered || m.offer == nil {
			m.mu.Unlock()
			return ErrWrongPhase
		}
		tripID := m.offer.TripID
		m.mu.Unlock()

		m.send(&stream.TripDecisionEvent{Type: stream.TypeTripRejected, TripID: tripID})
		m.reset()
		return nil
	})
}

// ConfirmPickup moves Assigned -> OnRoute; the destination switches from
// pickup to dropoff only after the backend ack.
func (m *Machine) ConfirmPickup(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		if m.phase != domain.PhaseAssigned || m.offer == nil {
			m.mu.Unlock()
			return ErrWrongPhase
		}
		offer := *m.offer
		m.mu.Unlock()

		err := m.backend.ConfirmPickup(ctx, &rest.TripPartiesRequest{
			DriverID: m.driverID, RiderID: offer.RiderID, TripID: offer.TripID,
		})
		if err != nil {
			return err
		}

		m.setOffer(&offer, domain.PhaseOnRoute)
		dest := offer.Dropoff.Point
		m.notifyDestination(&dest)
		return nil
	})
}

// ConfirmDropoff completes the trip: phase collapses through Completed
// back to None and a full session reload is requested.
func (m *Machine) ConfirmDropoff(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		if m.phase != domain.PhaseOnRoute || m.offer == nil {
			m.mu.Unlock()
			return ErrWrongPhase
		}
		offer := *m.offer
		m.mu.Unlock()

		err := m.backend.ConfirmDropoff(ctx, &rest.TripPartiesRequest{
			DriverID: m.driverID, RiderID: offer.RiderID, TripID: offer.TripID,
		})
		if err != nil {
			return err
		}

		m.slogger.Info("trip completed", "trip_id", offer.TripID)
		m.reset()
		if m.hooks.OnReload != nil {
			m.hooks.OnReload()
		}
		return nil
	})
}

func (m *Machine) setOffer(offer *domain.TripOffer, phase domain.TripPhase) {
	m.mu.Lock()
	m.offer = offer
	m.phase = phase
	m.mu.Unlock()
}

// reset collapses to PhaseNone and releases everything derived from the
// offer: expiry timer, routed destination, realtime publisher.
func (m *Machine) reset() {
	m.stopExpiry()
	m.mu.Lock()
	m.offer = nil
	m.phase = domain.PhaseNone
	m.mu.Unlock()
	m.notifyDestination(nil)
	m.notifyOfferActive(false)
}

func (m *Machine) send(v any) {
	if m.sender != nil {
		m.sender.Send(v)
	}
}

func (m *Machine) notifyDestination(pt *domain.LatLng) {
	if m.hooks.OnDestination != nil {
		m.hooks.OnDestination(pt)
	}
}

func (m *Machine) notifyOfferActive(active bool) {
	if m.hooks.OnOfferActive != nil {
		m.hooks.OnOfferActive(active)
	}
}

func (m *Machine) armExpiry(at time.Time) {
	m.stopExpiry()
	d := time.Until(at)
	if d <= 0 {
		d = time.Millisecond
	}
	m.expiry = time.NewTimer(d)
	m.expiryC = m.expiry.C
}

func (m *Machine) stopExpiry() {
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
		m.expiryC = nil
	}
}
