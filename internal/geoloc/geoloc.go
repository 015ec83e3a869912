package geoloc

import (
	"context"
	"errors"
)

// ErrUnavailable means no location source is configured or permitted. It is
// advisory: callers surface it as a notice, never as a fatal error.
var ErrUnavailable = errors.New("location unavailable")

// Locator supplies the device's current coordinates. A terminal process has
// no GPS, so the default implementation is configured coordinates; richer
// sources (IP lookup, OS location services) just implement this.
type Locator interface {
	Current(ctx context.Context) (lat, lng string, err error)
}

// StaticLocator returns fixed coordinates from configuration.
type StaticLocator struct {
	Lat string
	Lng string
}

// Current implements Locator.
func (s StaticLocator) Current(ctx context.Context) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if s.Lat == "" || s.Lng == "" {
		return "", "", ErrUnavailable
	}
	return s.Lat, s.Lng, nil
}

// Disabled is a Locator that always reports unavailable, for deployments
// that opt out of location-derived selection.
type Disabled struct{}

// Current implements Locator.
func (Disabled) Current(context.Context) (string, string, error) {
	return "", "", ErrUnavailable
}
