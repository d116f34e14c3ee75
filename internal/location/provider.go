package location

import (
	"errors"
	"time"

	"loop-drive/internal/domain"
)

// ErrPermissionDenied marks a device-level location permission denial.
// Providers must wrap their platform error with it so the sampler can
// tell a blocked permission from an ordinary fix failure.
var ErrPermissionDenied = errors.New("location permission denied")

type WatchOptions struct {
	HighAccuracy bool
	MaxSampleAge time.Duration
	Timeout      time.Duration
}

// Provider abstracts the device geolocation capability. A watch delivers
// fixes continuously until its stop function is called.
type Provider interface {
	Supported() bool
	Watch(opts WatchOptions, onSample func(domain.LocationSample), onError func(error)) (stop func(), err error)
}
