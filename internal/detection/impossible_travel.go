// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package detection

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/buffalogs/internal/models"
)

// earthRadiusKm is the mean Earth radius used by haversineDistance.
const earthRadiusKm = 6371.0

// ImpossibleTravelDetector flags two logins whose distance could not be
// covered in the elapsed time at the accepted speed, e.g. Bologna to New
// York in ten minutes.
type ImpossibleTravelDetector struct{}

// Type returns the alert name.
func (ImpossibleTravelDetector) Type() models.AlertName {
	return models.AlertImpossibleTravel
}

func (ImpossibleTravelDetector) geographic() {}

// Check compares event with the most recent earlier login that has
// coordinates.
func (ImpossibleTravelDetector) Check(user *models.User, event *models.LoginEvent, history *History, s *Settings) *models.Alert {
	if !event.HasCoordinates() {
		return nil
	}
	prev := history.LastWithCoordinates(event.Timestamp)
	if prev == nil {
		return nil
	}

	cfg := s.Config
	distance := haversineDistance(*prev.Latitude, *prev.Longitude, *event.Latitude, *event.Longitude)
	if distance <= cfg.DistanceAccepted {
		return nil
	}
	if prev.Country != "" && prev.Country == event.Country && cfg.IgnoredImpTravelAllSameCountry {
		return nil
	}
	if s.IsIgnoredCountryCouple(prev.Country, event.Country) {
		return nil
	}

	vipAlways := cfg.VIPTravelAlwaysAlert && s.IsVIP(user.Username)
	elapsed := event.Timestamp.Sub(prev.Timestamp)
	if elapsed <= 0 && !vipAlways {
		return nil
	}
	speed := travelSpeed(distance, elapsed)
	if speed <= cfg.VelAccepted && !vipAlways {
		return nil
	}

	alert := newAlert(user, models.AlertImpossibleTravel, fmt.Sprintf(
		"Impossible Travel detected for User: %s, at: %s, from: %s, previous country: %s, distance covered at %d Km/h",
		user.Username, event.Timestamp.UTC().Format(time.RFC3339), event.Country, prev.Country, int(speed)))
	alert.LoginRawData = map[string]any{
		"buffalogs": map[string]any{
			"start_country": prev.Country,
			"avg_speed":     int(speed),
			"start_lat":     roundTo2Decimals(*prev.Latitude),
			"start_lon":     roundTo2Decimals(*prev.Longitude),
			"distance_km":   roundTo2Decimals(distance),
		},
	}
	return alert
}

// travelSpeed returns km/h. A zero or negative interval counts as 3.6
// seconds so that simultaneous logins yield a very high, finite speed.
func travelSpeed(distanceKm float64, elapsed time.Duration) float64 {
	hours := elapsed.Hours()
	if hours <= 0 {
		hours = 0.001
	}
	return distanceKm / hours
}

// haversineDistance calculates the great-circle distance between two points in kilometers.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func roundTo2Decimals(v float64) float64 {
	return math.Round(v*100) / 100
}
