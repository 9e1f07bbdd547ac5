// Package businessday maps timestamps to the commercial day they belong to.
//
// A bar that closes after midnight keeps selling on the previous business
// day until its close hour. With closeHour=6, a sale at 02:00 on May 2nd
// belongs to May 1st while a sale at 06:00 belongs to May 2nd.
package businessday

import (
	"fmt"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
)

const keyLayout = "2006-01-02"

// Key identifies a business day as a calendar date (YYYY-MM-DD).
type Key string

// ParseKey validates a YYYY-MM-DD string.
func ParseKey(raw string) (Key, error) {
	t, err := time.Parse(keyLayout, raw)
	if err != nil {
		return "", apperror.Newf(apperror.ErrInvalidInput, "invalid business day %q", raw)
	}
	return Key(t.Format(keyLayout)), nil
}

func (k Key) String() string {
	return string(k)
}

// Date returns the key as midnight UTC. A key that is not a valid
// YYYY-MM-DD date is an InvalidInput error.
func (k Key) Date() (time.Time, error) {
	t, err := time.Parse(keyLayout, string(k))
	if err != nil {
		return time.Time{}, apperror.Newf(apperror.ErrInvalidInput, "invalid business day %q", string(k))
	}
	return t, nil
}

// AddDays shifts the key by n calendar days.
func (k Key) AddDays(n int) (Key, error) {
	t, err := k.Date()
	if err != nil {
		return "", err
	}
	y, m, d := t.Date()
	return keyFromDate(y, m, d+n), nil
}

func (k Key) Before(other Key) bool {
	return k < other
}

func (k Key) After(other Key) bool {
	return k > other
}

// Start is the instant the business day opens in loc.
func (k Key) Start(closeHour int, loc *time.Location) (time.Time, error) {
	t, err := k.Date()
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, closeHour, 0, 0, 0, locationOrUTC(loc)), nil
}

// End is the instant the next business day opens.
func (k Key) End(closeHour int, loc *time.Location) (time.Time, error) {
	next, err := k.AddDays(1)
	if err != nil {
		return time.Time{}, err
	}
	return next.Start(closeHour, loc)
}

// Of returns the business day of t for a venue closing at closeHour in loc.
// A timestamp exactly at closeHour belongs to the new day.
func Of(t time.Time, closeHour int, loc *time.Location) Key {
	local := t.In(locationOrUTC(loc))
	y, m, d := local.Date()
	if local.Hour() < closeHour {
		d--
	}
	return keyFromDate(y, m, d)
}

// IsSame reports whether a and b fall on the same business day.
func IsSame(a, b time.Time, closeHour int, loc *time.Location) bool {
	return Of(a, closeHour, loc) == Of(b, closeHour, loc)
}

// ValidateCloseHour rejects values outside [0,23].
func ValidateCloseHour(closeHour int) error {
	if closeHour < 0 || closeHour > 23 {
		return apperror.Newf(apperror.ErrConfiguration, "close hour %d outside [0,23]", closeHour)
	}
	return nil
}

func keyFromDate(y int, m time.Month, d int) Key {
	// Noon UTC keeps the date stable regardless of DST.
	return Key(time.Date(y, m, d, 12, 0, 0, 0, time.UTC).Format(keyLayout))
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Resolver binds the venue close hour and time zone to a clock.
type Resolver struct {
	closeHour int
	loc       *time.Location
	now       func() time.Time
}

// NewResolver validates closeHour. A nil now defaults to time.Now.
func NewResolver(closeHour int, loc *time.Location, now func() time.Time) (*Resolver, error) {
	if err := ValidateCloseHour(closeHour); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{closeHour: closeHour, loc: locationOrUTC(loc), now: now}, nil
}

func (r *Resolver) CloseHour() int {
	return r.closeHour
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

func (r *Resolver) Now() time.Time {
	return r.now()
}

func (r *Resolver) Of(t time.Time) Key {
	return Of(t, r.closeHour, r.loc)
}

// Current is the business day in progress on the venue's wall clock.
func (r *Resolver) Current() Key {
	return r.Of(r.now())
}

func (r *Resolver) IsSame(a, b time.Time) bool {
	return IsSame(a, b, r.closeHour, r.loc)
}

// IsOpen reports whether k is the business day in progress.
func (r *Resolver) IsOpen(k Key) bool {
	return k == r.Current()
}

// Bounds returns [start, end) of the business day k.
func (r *Resolver) Bounds(k Key) (time.Time, time.Time, error) {
	start, err := k.Start(r.closeHour, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := k.End(r.closeHour, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (r *Resolver) String() string {
	return fmt.Sprintf("closeHour=%d tz=%s", r.closeHour, r.loc)
}
