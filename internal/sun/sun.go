// Package sun implements the snapshot gating policy: an interval gate
// for snapshot rounds and a solar-elevation gate for cameras limited to
// daylight hours.
package sun

import (
	"math"
	"time"

	"github.com/terminusxx/docker-wyze-bridge/internal/config"
)

// Policy gates snapshot rounds using the bridge configuration.
type Policy struct {
	cfg *config.Config
	now func() time.Time
}

// NewPolicy creates a snapshot policy backed by the given config.
func NewPolicy(cfg *config.Config) *Policy {
	return &Policy{cfg: cfg, now: time.Now}
}

// ShouldTake reports whether a snapshot round is due: the mode must be
// one that produces snapshots and the configured interval must have
// elapsed since the last round.
func (p *Policy) ShouldTake(mode string, last time.Time) bool {
	if mode != config.SnapshotRTSP && mode != config.SnapshotAPI {
		return false
	}
	return p.now().Sub(last) >= p.cfg.Snapshot.IntervalDuration()
}

// ShouldSkip reports whether a camera should sit this round out. Only
// cameras marked daylight-only are ever skipped, and only while the sun
// is below the horizon at the configured location.
func (p *Policy) ShouldSkip(uri string) bool {
	cam := p.cfg.GetCamera(uri)
	if cam == nil || !cam.DaylightOnly {
		return false
	}
	loc := p.cfg.Location
	return Elevation(p.now(), loc.Latitude, loc.Longitude) < 0
}

// Elevation returns the solar elevation angle in degrees at the given
// time and location, using the NOAA low-accuracy solar position
// approximation. Positive means the sun is above the horizon.
func Elevation(t time.Time, lat, lon float64) float64 {
	ut := t.UTC()
	// Days since J2000.0, including the fractional day.
	julian := float64(ut.Unix())/86400.0 + 2440587.5
	d := julian - 2451545.0

	rad := math.Pi / 180.0

	// Mean anomaly and mean longitude of the sun.
	g := math.Mod(357.529+0.98560028*d, 360)
	q := math.Mod(280.459+0.98564736*d, 360)

	// Ecliptic longitude.
	l := q + 1.915*math.Sin(g*rad) + 0.020*math.Sin(2*g*rad)

	// Obliquity of the ecliptic.
	e := 23.439 - 0.00000036*d

	// Right ascension and declination.
	ra := math.Atan2(math.Cos(e*rad)*math.Sin(l*rad), math.Cos(l*rad)) / rad
	decl := math.Asin(math.Sin(e*rad) * math.Sin(l*rad))

	// Greenwich mean sidereal time, then local hour angle.
	gmst := math.Mod(18.697374558+24.06570982441908*d, 24)
	ha := (gmst*15 + lon - ra) * rad

	latR := lat * rad
	sinElev := math.Sin(latR)*math.Sin(decl) + math.Cos(latR)*math.Cos(decl)*math.Cos(ha)
	return math.Asin(sinElev) / rad
}
