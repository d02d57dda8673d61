package match

import (
	"math"
	"strings"
	"time"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/model"
)

// Neutral is the sub-score used when a signal cannot be evaluated.
const Neutral = 50.0

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance between two points in kilometres.
func Distance(a, b model.Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// TimeDiff returns the absolute difference between two instants.
func TimeDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// LocationScore decays linearly from 100 at zero distance to the floor at
// the hard-filter radius, then more steeply from the floor to 0 at the cutoff.
func LocationScore(distanceKm float64, cfg config.MatchingConfig) float64 {
	radius, floor, cutoff := cfg.MaxDistanceKm, cfg.LocationFloor, cfg.LocationCutoffKm

	switch {
	case distanceKm <= 0:
		return 100
	case distanceKm <= radius:
		return 100 - (100-floor)*distanceKm/radius
	case distanceKm < cutoff:
		return floor * (1 - (distanceKm-radius)/(cutoff-radius))
	default:
		return 0
	}
}

// dayBuckets maps the number of UTC calendar days between two occurrences
// to a score. Anything past the last bucket scores timeFloor.
var dayBuckets = []struct {
	maxDays int
	score   float64
}{
	{0, 100},
	{3, 80},
	{7, 60},
	{14, 40},
	{30, 20},
}

const timeFloor = 10.0

// TimeScore scores two occurrence times by the number of UTC calendar days
// between them.
func TimeScore(a, b time.Time) float64 {
	days := calendarDays(a.UTC(), b.UTC())
	for _, bucket := range dayBuckets {
		if days <= bucket.maxDays {
			return bucket.score
		}
	}
	return timeFloor
}

func calendarDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

type rgb struct{ r, g, b float64 }

var palette = map[string]rgb{
	"black":  {0, 0, 0},
	"white":  {255, 255, 255},
	"grey":   {128, 128, 128},
	"gray":   {128, 128, 128},
	"silver": {192, 192, 192},
	"red":    {220, 20, 60},
	"maroon": {128, 0, 0},
	"pink":   {255, 160, 190},
	"orange": {255, 140, 0},
	"yellow": {255, 215, 0},
	"gold":   {212, 175, 55},
	"beige":  {225, 205, 170},
	"brown":  {139, 69, 19},
	"tan":    {210, 180, 140},
	"green":  {34, 139, 34},
	"olive":  {128, 128, 0},
	"teal":   {0, 128, 128},
	"blue":   {30, 80, 220},
	"navy":   {0, 0, 128},
	"purple": {128, 0, 128},
	"violet": {148, 0, 211},
}

// maxColorDistance is the distance between black and white.
var maxColorDistance = math.Sqrt(3 * 255 * 255)

// ColorScore compares two free-text color descriptions. Known color words
// are compared by RGB distance; unknown descriptions only score on exact
// agreement and are otherwise neutral.
func ColorScore(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return Neutral
	}
	if a == b {
		return 100
	}

	ca, okA := baseColor(a)
	cb, okB := baseColor(b)
	if !okA || !okB {
		return Neutral
	}

	d := math.Sqrt((ca.r-cb.r)*(ca.r-cb.r) + (ca.g-cb.g)*(ca.g-cb.g) + (ca.b-cb.b)*(ca.b-cb.b))
	return 100 * (1 - d/maxColorDistance)
}

// baseColor returns the last known color word of a description, so
// "dark navy blue" resolves to blue.
func baseColor(s string) (rgb, bool) {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == ','
	})
	for i := len(words) - 1; i >= 0; i-- {
		if c, ok := palette[words[i]]; ok {
			return c, true
		}
	}
	return rgb{}, false
}
