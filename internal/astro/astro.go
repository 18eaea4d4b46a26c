// Package astro computes solar event times for a fixed location using
// the NOAA sunrise equations.
package astro

import (
	"math"
	"time"
)

// Times holds the solar events of one day.
type Times struct {
	Dawn    time.Time // civil dawn, sun 6 degrees below the horizon
	Sunrise time.Time
	Noon    time.Time
	Sunset  time.Time
	Dusk    time.Time // civil dusk
}

// Calculator computes Times for a fixed latitude and longitude.
type Calculator struct {
	lat float64
	lon float64
	loc *time.Location
}

func NewCalculator(lat, lon float64, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{lat: lat, lon: lon, loc: loc}
}

// Location returns the calculator's time zone.
func (c *Calculator) Location() *time.Location { return c.loc }

// TimesFor computes solar events for the given date.
func (c *Calculator) TimesFor(date time.Time) Times {
	date = date.In(c.loc)

	// The sunrise equation expects the Julian day at noon, not midnight.
	jd := toJulianDay(date) + 0.5

	return Times{
		Dawn:    sunTime(jd, c.lat, c.lon, c.loc, date, -6.0, true),
		Sunrise: sunTime(jd, c.lat, c.lon, c.loc, date, -0.833, true),
		Noon:    solarNoon(jd, c.lon, c.loc, date),
		Sunset:  sunTime(jd, c.lat, c.lon, c.loc, date, -0.833, false),
		Dusk:    sunTime(jd, c.lat, c.lon, c.loc, date, -6.0, false),
	}
}

// TimesToday computes solar events for the current date.
func (c *Calculator) TimesToday() Times {
	return c.TimesFor(time.Now().In(c.loc))
}

// DarkAt reports whether the sun is below the horizon at t.
func (c *Calculator) DarkAt(t time.Time) bool {
	times := c.TimesFor(t)
	return t.Before(times.Sunrise) || !t.Before(times.Sunset)
}

func toJulianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

func solarNoon(jd, lon float64, tz *time.Location, date time.Time) time.Time {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center and ecliptic longitude.
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	return julianToTime(jTransit, tz, date)
}

func sunTime(jd, lat, lon float64, tz *time.Location, date time.Time, angle float64, rising bool) time.Time {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	sinDec := math.Sin(lambdaRad) * math.Sin(23.44*math.Pi/180.0)
	dec := math.Asin(sinDec)

	latRad := lat * math.Pi / 180.0
	angleRad := angle * math.Pi / 180.0

	cosOmega := (math.Sin(angleRad) - math.Sin(latRad)*math.Sin(dec)) / (math.Cos(latRad) * math.Cos(dec))

	// Polar day and night clamp to solar noon.
	if cosOmega > 1 {
		cosOmega = 1
	} else if cosOmega < -1 {
		cosOmega = -1
	}

	omega := math.Acos(cosOmega) * 180.0 / math.Pi

	var jTime float64
	if rising {
		jTime = jTransit - omega/360.0
	} else {
		jTime = jTransit + omega/360.0
	}

	return julianToTime(jTime, tz, date)
}

// julianToTime converts a Julian day to wall clock time on the
// reference date.
func julianToTime(jd float64, tz *time.Location, refDate time.Time) time.Time {
	unixTime := (jd - 2440587.5) * 86400.0
	t := time.Unix(int64(unixTime), int64((unixTime-math.Floor(unixTime))*1e9)).In(tz)

	return time.Date(
		refDate.Year(), refDate.Month(), refDate.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, tz,
	)
}
