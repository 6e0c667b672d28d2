package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/suma-triage/internal/observability"
)

// ErrShareUnsupported is returned by a Sharer that cannot share on this device.
var ErrShareUnsupported = errors.New("share not supported")

// ErrLocationUnavailable is returned by a Locator with no fix.
var ErrLocationUnavailable = errors.New("location unavailable")

const (
	ShareTitle    = "Suma emergency"
	locateTimeout = 10 * time.Second
)

type Location struct {
	Latitude  float64
	Longitude float64
}

// MapsLink is the link shared with the location.
func MapsLink(loc Location) string {
	return fmt.Sprintf("https://maps.google.com/?q=%g,%g", loc.Latitude, loc.Longitude)
}

// TelURI is the dialer link for number.
func TelURI(number string) string {
	return "tel:" + number
}

type Dialer interface {
	Dial(ctx context.Context, number string) error
}

type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

type Sharer interface {
	Share(ctx context.Context, title, text string) error
}

// Alerter shows a message the user must act on by hand.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

type Service struct {
	locale  string
	dir     Directory
	dialer  Dialer
	locator Locator
	sharer  Sharer
	alerter Alerter
}

func NewService(locale string, dialer Dialer, locator Locator, sharer Sharer, alerter Alerter) *Service {
	return &Service{
		locale:  locale,
		dir:     defaultDirectory,
		dialer:  dialer,
		locator: locator,
		sharer:  sharer,
		alerter: alerter,
	}
}

// Dispatch describes a triggered emergency. Done closes once the location
// step has finished, successfully or not.
type Dispatch struct {
	Number string
	TelURI string
	Done   <-chan struct{}
}

func (s *Service) Number() string {
	return s.dir.Lookup(s.locale)
}

// Trigger dials first and only then, in the background, locates the device
// and shares a maps link. Location problems never delay or cancel the call.
func (s *Service) Trigger(ctx context.Context) (Dispatch, error) {
	number := s.Number()
	log := observability.LoggerFromContext(ctx).With("number", number)

	if err := s.dialer.Dial(ctx, number); err != nil {
		log.Error("emergency dial failed", "error", err)
		return Dispatch{}, fmt.Errorf("dial %s: %w", number, err)
	}
	log.Warn("emergency call placed")

	done := make(chan struct{})
	go func() {
		defer close(done)
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), locateTimeout)
		defer cancel()
		s.shareLocation(bg, number)
	}()

	return Dispatch{Number: number, TelURI: TelURI(number), Done: done}, nil
}

func (s *Service) shareLocation(ctx context.Context, number string) {
	log := observability.LoggerFromContext(ctx).With("number", number)

	loc, err := s.locator.Locate(ctx)
	if err != nil {
		log.Warn("could not get location", "error", err)
		s.alerter.Alert(ctx, fmt.Sprintf("Could not get your location. Calling the emergency number: %s.", number))
		return
	}

	link := MapsLink(loc)
	err = s.sharer.Share(ctx, ShareTitle, "SUMA EMERGENCY - Exact location: "+link)
	switch {
	case err == nil:
		log.Info("location shared")
	case errors.Is(err, ErrShareUnsupported):
		s.alerter.Alert(ctx, "Location to share manually:\n"+link)
	default:
		log.Warn("could not share location", "error", err)
		s.alerter.Alert(ctx, fmt.Sprintf("Could not share your location. Calling the emergency number: %s.", number))
	}
}
