package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

// geocodeFunc resolves a city to coordinates.
type geocodeFunc func(ctx context.Context, city, country, apiKey string) (float64, float64, error)

var geocode geocodeFunc = googleGeocode

// geocoder keeps its API key in a package variable.
var geocoderMu sync.Mutex

func googleGeocode(_ context.Context, city, country, apiKey string) (float64, float64, error) {
	if apiKey == "" {
		return 0, 0, fmt.Errorf("%w: geocoder_api_key is required to resolve %q", ErrGeocode, city)
	}

	geocoderMu.Lock()
	defer geocoderMu.Unlock()

	geocoder.ApiKey = apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s, %s: %v", ErrGeocode, city, country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
