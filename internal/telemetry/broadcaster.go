package telemetry

import (
	"context"
	"log/slog"
	"time"

	"loop-drive/internal/domain"
	"loop-drive/internal/rest"
	"loop-drive/internal/stream"
)

// Persister is the REST side of telemetry.
type Persister interface {
	PushLocation(ctx context.Context, snap *rest.LocationSnapshot) error
}

// ChannelSender is the realtime side of telemetry.
type ChannelSender interface {
	Send(v any)
	State() domain.ConnectionState
}

// TripView exposes the bits of trip state telemetry needs.
type TripView interface {
	ActiveOffer() *domain.TripOffer
	Phase() domain.TripPhase
}

// Broadcaster runs the two independent periodic publishers of driver
// state: a full snapshot to REST persistence while the driver is online,
// and a light event over the channel while a trip is active. Both need a
// known latest location and both fire once immediately on activation.
type Broadcaster struct {
	slogger *slog.Logger
	session domain.DriverSession
	latest  func() *domain.LocationSample
	rest    Persister
	channel ChannelSender
	trips   TripView

	restEvery   time.Duration
	streamEvery time.Duration
}

func NewBroadcaster(
	slogger *slog.Logger,
	session domain.DriverSession,
	latest func() *domain.LocationSample,
	persister Persister,
	channel ChannelSender,
	trips TripView,
	restEvery, streamEvery time.Duration,
) *Broadcaster {
	return &Broadcaster{
		slogger:     slogger,
		session:     session,
		latest:      latest,
		rest:        persister,
		channel:     channel,
		trips:       trips,
		restEvery:   restEvery,
		streamEvery: streamEvery,
	}
}

// how often the first-ever fix is checked for before the interval loop
var firstFixProbe = time.Second

// RunPersistence publishes the full driver snapshot every restEvery while
// ctx (the online-session scope) is alive. The first send fires as soon
// as a fix exists — not on the next tick — and happens exactly once,
// never duplicated by the ticker.
func (b *Broadcaster) RunPersistence(ctx context.Context) {
	for b.latest() == nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(firstFixProbe):
		}
	}
	b.publishPersistence(ctx)

	ticker := time.NewTicker(b.restEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.latest() == nil {
				continue
			}
			b.publishPersistence(ctx)
		}
	}
}

func (b *Broadcaster) publishPersistence(ctx context.Context) {
	sample := b.latest()
	if sample == nil {
		return
	}

	var tripID, riderID string
	if offer := b.trips.ActiveOffer(); offer != nil {
		tripID = offer.TripID
		riderID = offer.RiderID
	}

	snap := &rest.LocationSnapshot{
		DriverID:     b.session.DriverID,
		Name:         b.session.Name,
		CarMake:      b.session.Vehicle.Make,
		CarModel:     b.session.Vehicle.Model,
		CarColor:     b.session.Vehicle.Color,
		CarPlate:     b.session.Vehicle.LicensePlate,
		LatLng:       sample.Point,
		LastUpdated:  time.Now().UnixMilli(),
		Status:       domain.AvailabilityOf(tripID != ""),
		IsOnline:     true,
		CurrentTrip:  tripID,
		CurrentRider: riderID,
	}
	if err := b.rest.PushLocation(ctx, snap); err != nil {
		b.slogger.Warn("location snapshot push failed", "error", err)
	}
}

// RunRealtime publishes the light location event every streamEvery while
// ctx (the active-offer scope) is alive. Sends are skipped, not queued,
// when the channel is down or the offer is gone.
func (b *Broadcaster) RunRealtime(ctx context.Context) {
	b.publishRealtime()

	ticker := time.NewTicker(b.streamEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishRealtime()
		}
	}
}

func (b *Broadcaster) publishRealtime() {
	sample := b.latest()
	offer := b.trips.ActiveOffer()
	if sample == nil || offer == nil {
		return
	}
	if b.channel.State() != domain.Connected {
		return
	}

	status := "assigned"
	if b.trips.Phase() == domain.PhaseOnRoute {
		status = "on_route"
	}

	b.channel.Send(&stream.DriverLocationUpdateEvent{
		Type:              stream.TypeDriverLocationUpdate,
		TripID:            offer.TripID,
		RiderID:           offer.RiderID,
		DriverID:          b.session.DriverID,
		DriverName:        b.session.Name,
		DriverCarColor:    b.session.Vehicle.Color,
		DriverCarNumber:   b.session.Vehicle.LicensePlate,
		DriverProfilePic:  b.session.ProfilePicURL,
		DriverPhoneNumber: b.session.PhoneNumber,
		Lat:               sample.Point.Lat,
		Lng:               sample.Point.Lng,
		Status:            status,
	})
}
