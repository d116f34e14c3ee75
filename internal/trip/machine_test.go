package trip

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"loop-drive/internal/domain"
	"loop-drive/internal/rest"
	"loop-drive/internal/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never reached")
}

type fakeBackend struct {
	mu         sync.Mutex
	status     *rest.DriverTripStatusResponse
	statusErr  error
	active     *rest.ActiveTrip
	acceptErr  error
	pickupErr  error
	dropoffErr error
	cancelErr  error

	accepted []string
	pickups  []*rest.TripPartiesRequest
	dropoffs []*rest.TripPartiesRequest
	cancels  []*rest.CancelTripRequest
}

func (b *fakeBackend) AcceptTrip(_ context.Context, _, tripID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.acceptErr != nil {
		return b.acceptErr
	}
	b.accepted = append(b.accepted, tripID)
	return nil
}

func (b *fakeBackend) CheckDriverTripStatus(context.Context) (*rest.DriverTripStatusResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statusErr != nil {
		return nil, b.statusErr
	}
	if b.status == nil {
		return &rest.DriverTripStatusResponse{Status: rest.StatusProbe{IsBool: true}}, nil
	}
	cp := *b.status
	return &cp, nil
}

func (b *fakeBackend) ActiveTrip(context.Context, string) (*rest.ActiveTrip, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil, errors.New("no active trip")
	}
	cp := *b.active
	return &cp, nil
}

func (b *fakeBackend) ConfirmPickup(_ context.Context, req *rest.TripPartiesRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pickupErr != nil {
		return b.pickupErr
	}
	b.pickups = append(b.pickups, req)
	return nil
}

func (b *fakeBackend) ConfirmDropoff(_ context.Context, req *rest.TripPartiesRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropoffErr != nil {
		return b.dropoffErr
	}
	b.dropoffs = append(b.dropoffs, req)
	return nil
}

func (b *fakeBackend) CancelTrip(_ context.Context, req *rest.CancelTripRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelErr != nil {
		return b.cancelErr
	}
	b.cancels = append(b.cancels, req)
	return nil
}

func (b *fakeBackend) setStatus(status *rest.DriverTripStatusResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func (b *fakeBackend) lastCancel() *rest.CancelTripRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.cancels) == 0 {
		return nil
	}
	return b.cancels[len(b.cancels)-1]
}

type fakeSender struct {
	mu   sync.Mutex
	sent []any
}

func (s *fakeSender) Send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
}

func (s *fakeSender) events() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

type hookRecorder struct {
	mu      sync.Mutex
	dests   []*domain.LatLng
	offers  []bool
	reloads int
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		OnDestination: func(pt *domain.LatLng) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if pt == nil {
				h.dests = append(h.dests, nil)
				return
			}
			cp := *pt
			h.dests = append(h.dests, &cp)
		},
		OnOfferActive: func(active bool) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.offers = append(h.offers, active)
		},
		OnReload: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.reloads++
		},
	}
}

func (h *hookRecorder) lastDest() (*domain.LatLng, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.dests) == 0 {
		return nil, false
	}
	return h.dests[len(h.dests)-1], true
}

func (h *hookRecorder) reloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}

func offerEvent(tripID string, ttl time.Duration) *stream.TripRequestEvent {
	return &stream.TripRequestEvent{
		Type:                 stream.TypeTripRequest,
		TripID:               tripID,
		RiderID:              "rider-4",
		PickupLat:            43.65,
		PickupLng:            -79.38,
		DropoffLat:           43.70,
		DropoffLng:           -79.40,
		PickupLocation:       "100 Queen St W, Toronto, Ontario",
		DropoffLocation:      "1 Yonge St, Toronto, Ontario",
		EstimatedDistanceKm:  6.2,
		EstimatedDurationMin: 14,
		EstimatedPrice:       18.5,
		ExpiresAt:            time.Now().Add(ttl).UnixMilli(),
	}
}

func startMachine(t *testing.T, backend *fakeBackend, pollEvery time.Duration) (*Machine, *fakeSender, *hookRecorder) {
	t.Helper()
	sender := &fakeSender{}
	hooks := &hookRecorder{}
	m := NewMachine(discardLogger(), "drv-1", backend, nil, hooks.hooks(), pollEvery)
	m.SetSender(sender)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m, sender, hooks
}

func TestStreamOfferMovesToOffered(t *testing.T) {
	m, _, _ := startMachine(t, &fakeBackend{}, time.Hour)

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })

	offer := m.ActiveOffer()
	if offer == nil || offer.TripID != "trip-9" || offer.Pickup.Label == "" {
		t.Fatalf("offer = %+v", offer)
	}
}

func TestFullTripLifecycle(t *testing.T) {
	backend := &fakeBackend{}
	m, sender, hooks := startMachine(t, backend, time.Hour)
	ctx := context.Background()

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })

	if err := m.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.Phase() != domain.PhaseAssigned {
		t.Fatalf("phase after accept = %s", m.Phase())
	}
	dest, ok := hooks.lastDest()
	if !ok || dest == nil || dest.Lat != 43.65 {
		t.Fatalf("destination after accept = %v, want pickup", dest)
	}
	ev, isDecision := sender.events()[0].(*stream.TripDecisionEvent)
	if !isDecision || ev.Type != stream.TypeTripAccepted || ev.TripID != "trip-9" {
		t.Fatalf("outbound after accept = %+v", sender.events()[0])
	}

	if err := m.ConfirmPickup(ctx); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if m.Phase() != domain.PhaseOnRoute {
		t.Fatalf("phase after pickup = %s", m.Phase())
	}
	dest, _ = hooks.lastDest()
	if dest == nil || dest.Lat != 43.70 {
		t.Fatalf("destination after pickup = %v, want dropoff", dest)
	}
	backend.mu.Lock()
	pickup := backend.pickups[0]
	backend.mu.Unlock()
	if pickup.DriverID != "drv-1" || pickup.RiderID != "rider-4" || pickup.TripID != "trip-9" {
		t.Fatalf("pickup request = %+v", pickup)
	}

	if err := m.ConfirmDropoff(ctx); err != nil {
		t.Fatalf("dropoff: %v", err)
	}
	if m.Phase() != domain.PhaseNone || m.ActiveOffer() != nil {
		t.Fatalf("after dropoff: phase %s offer %v", m.Phase(), m.ActiveOffer())
	}
	if hooks.reloadCount() != 1 {
		t.Fatalf("reloads = %d, want 1", hooks.reloadCount())
	}
	dest, _ = hooks.lastDest()
	if dest != nil {
		t.Fatalf("destination after dropoff = %v, want cleared", dest)
	}
}

func TestAcceptFailureStaysOffered(t *testing.T) {
	backend := &fakeBackend{acceptErr: errors.New("backend unavailable")}
	m, sender, _ := startMachine(t, backend, time.Hour)

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })

	if err := m.Accept(context.Background()); err == nil {
		t.Fatal("accept must surface the backend error")
	}
	if m.Phase() != domain.PhaseOffered || m.ActiveOffer() == nil {
		t.Fatalf("failed accept must not move phase, got %s", m.Phase())
	}
	if len(sender.events()) != 0 {
		t.Fatal("no outbound event on failed accept")
	}
}

func TestRejectIsLocalOnly(t *testing.T) {
	backend := &fakeBackend{}
	m, sender, _ := startMachine(t, backend, time.Hour)

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })

	if err := m.Reject(context.Background()); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if m.Phase() != domain.PhaseNone {
		t.Fatalf("phase after reject = %s", m.Phase())
	}
	ev := sender.events()[0].(*stream.TripDecisionEvent)
	if ev.Type != stream.TypeTripRejected {
		t.Fatalf("outbound = %+v", ev)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.accepted)+len(backend.cancels) != 0 {
		t.Fatal("reject must not touch the backend")
	}
}

func TestBusyDriverIgnoresNewOffer(t *testing.T) {
	m, _, _ := startMachine(t, &fakeBackend{}, time.Hour)
	ctx := context.Background()

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	if err := m.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	m.HandleTripRequest(offerEvent("trip-10", time.Minute))
	time.Sleep(50 * time.Millisecond)
	if offer := m.ActiveOffer(); offer.TripID != "trip-9" {
		t.Fatalf("busy driver swapped offer to %s", offer.TripID)
	}
	if m.Phase() != domain.PhaseAssigned {
		t.Fatalf("phase = %s", m.Phase())
	}
}

func TestRiderCancelResetsAndReloads(t *testing.T) {
	m, _, hooks := startMachine(t, &fakeBackend{}, time.Hour)
	ctx := context.Background()

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	if err := m.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	m.HandleTripCanceledByRider("trip-9")
	waitFor(t, func() bool { return m.Phase() == domain.PhaseNone })
	if m.ActiveOffer() != nil {
		t.Fatal("offer must clear on rider cancel")
	}
	if hooks.reloadCount() != 1 {
		t.Fatalf("reloads = %d, want 1", hooks.reloadCount())
	}
}

func TestOfferExpiresBackToNone(t *testing.T) {
	m, _, hooks := startMachine(t, &fakeBackend{}, time.Hour)

	m.HandleTripRequest(offerEvent("trip-9", 30*time.Millisecond))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	waitFor(t, func() bool { return m.Phase() == domain.PhaseNone })

	if m.ActiveOffer() != nil {
		t.Fatal("expired offer must clear")
	}
	// expiry is a quiet collapse, not a session reload
	if hooks.reloadCount() != 0 {
		t.Fatalf("reloads = %d, want 0", hooks.reloadCount())
	}
}

func TestAcceptStopsExpiry(t *testing.T) {
	m, _, _ := startMachine(t, &fakeBackend{}, time.Hour)

	m.HandleTripRequest(offerEvent("trip-9", 40*time.Millisecond))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	if err := m.Accept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if m.Phase() != domain.PhaseAssigned {
		t.Fatalf("accepted trip expired, phase = %s", m.Phase())
	}
}

func TestRehydrateFromPoll(t *testing.T) {
	backend := &fakeBackend{
		status: &rest.DriverTripStatusResponse{
			TripID: "trip-77",
			Status: rest.StatusProbe{Status: domain.StatusOnRoute},
		},
		active: &rest.ActiveTrip{
			TripID:          "trip-77",
			RiderID:         "rider-2",
			PickupLocation:  "100 Queen St W, Toronto, Ontario",
			DropoffLocation: "1 Yonge St, Toronto, Ontario",
			PickupLat:       43.65, PickupLng: -79.38,
			DropoffLat: 43.70, DropoffLng: -79.40,
			EstimatedPrice: 18.5,
			Status:         domain.StatusOnRoute,
		},
	}
	m, _, hooks := startMachine(t, backend, time.Hour)

	waitFor(t, func() bool { return m.Phase() == domain.PhaseOnRoute })
	offer := m.ActiveOffer()
	if offer == nil || offer.TripID != "trip-77" || offer.RiderID != "rider-2" {
		t.Fatalf("rehydrated offer = %+v", offer)
	}
	if time.Until(offer.ExpiresAt) < 10*time.Minute {
		t.Fatalf("rehydrated expiry too close: %v", offer.ExpiresAt)
	}
	dest, ok := hooks.lastDest()
	if !ok || dest == nil || dest.Lat != 43.70 {
		t.Fatalf("rehydrated destination = %v, want dropoff", dest)
	}
}

func TestPollClearsClosedTrip(t *testing.T) {
	backend := &fakeBackend{}
	m, _, _ := startMachine(t, backend, 25*time.Millisecond)
	ctx := context.Background()

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	if err := m.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// backend keeps answering "no trip": the poll clears the stale state
	waitFor(t, func() bool { return m.Phase() == domain.PhaseNone })
	if m.ActiveOffer() != nil {
		t.Fatal("offer must clear when the backend closed the trip")
	}
}

func TestPollSparesFreshOffer(t *testing.T) {
	m, _, _ := startMachine(t, &fakeBackend{}, 20*time.Millisecond)

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })

	// the backend does not track pre-acceptance offers, so a bare
	// "no trip" answer must not kill a live offer
	time.Sleep(100 * time.Millisecond)
	if m.Phase() != domain.PhaseOffered {
		t.Fatalf("poll killed a fresh offer, phase = %s", m.Phase())
	}
}

func TestPollClearsOfferedOnTerminalStatus(t *testing.T) {
	backend := &fakeBackend{}
	m, _, _ := startMachine(t, backend, 20*time.Millisecond)

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })

	backend.setStatus(&rest.DriverTripStatusResponse{
		TripID: "trip-9",
		Status: rest.StatusProbe{Status: domain.StatusCancelled},
	})
	waitFor(t, func() bool { return m.Phase() == domain.PhaseNone })
}

func TestCancelFromOnRoute(t *testing.T) {
	backend := &fakeBackend{}
	m, _, hooks := startMachine(t, backend, time.Hour)
	ctx := context.Background()

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	if err := m.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := m.ConfirmPickup(ctx); err != nil {
		t.Fatalf("pickup: %v", err)
	}

	if err := m.Cancel(ctx, "Vehicle issue or emergency"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	req := backend.lastCancel()
	if req == nil || !req.IsRiderPicked || req.Reason != "Vehicle issue or emergency" {
		t.Fatalf("cancel request = %+v", req)
	}
	if m.Phase() != domain.PhaseNone || hooks.reloadCount() != 1 {
		t.Fatalf("after cancel: phase %s reloads %d", m.Phase(), hooks.reloadCount())
	}
}

func TestCancelBeforePickupIsNotRiderPicked(t *testing.T) {
	backend := &fakeBackend{}
	m, _, _ := startMachine(t, backend, time.Hour)
	ctx := context.Background()

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	if err := m.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := m.Cancel(ctx, "Unable to reach rider"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if req := backend.lastCancel(); req.IsRiderPicked {
		t.Fatal("is_rider_picked must be false before pickup")
	}
}

func TestCancelFailureLeavesPhase(t *testing.T) {
	backend := &fakeBackend{cancelErr: errors.New("backend unavailable")}
	m, _, hooks := startMachine(t, backend, time.Hour)
	ctx := context.Background()

	m.HandleTripRequest(offerEvent("trip-9", time.Minute))
	waitFor(t, func() bool { return m.Phase() == domain.PhaseOffered })
	if err := m.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := m.Cancel(ctx, "Rider is taking too long"); err == nil {
		t.Fatal("cancel must surface the backend error")
	}
	if m.Phase() != domain.PhaseAssigned || m.ActiveOffer() == nil {
		t.Fatalf("failed cancel must not move phase, got %s", m.Phase())
	}
	if hooks.reloadCount() != 0 {
		t.Fatal("failed cancel must not reload")
	}
}

func TestCancelWithoutTrip(t *testing.T) {
	m, _, _ := startMachine(t, &fakeBackend{}, time.Hour)

	if err := m.Cancel(context.Background(), ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("err = %v, want ErrReasonRequired", err)
	}
	if err := m.Cancel(context.Background(), "Unable to reach rider"); !errors.Is(err, ErrNoOffer) {
		t.Fatalf("err = %v, want ErrNoOffer", err)
	}
}

func TestResolveCancelReason(t *testing.T) {
	tests := []struct {
		name     string
		selected string
		custom   string
		want     string
		wantErr  error
	}{
		{"nothing picked", "", "", "", ErrReasonRequired},
		{"preset reason", "Unable to reach rider", "", "Unable to reach rider", nil},
		{"preset ignores custom", "Pickup location is unsafe", "typed text", "Pickup location is unsafe", nil},
		{"other without text", ReasonOther, "  ", "", ErrCustomRequired},
		{"other with text", ReasonOther, " flat tire ", "flat tire", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCancelReason(tt.selected, tt.custom)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("reason = %q, want %q", got, tt.want)
			}
		})
	}
}
