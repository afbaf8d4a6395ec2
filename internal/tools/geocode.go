package tools

import (
	"context"
	"fmt"
	"net/url"
)

const openMeteoGeocodeURL = "https://geocoding-api.open-meteo.com/v1/search"

// GeocodeTool resolves a place name to coordinates using the Open-Meteo
// geocoding API
type GeocodeTool struct {
	fetch   *fetcher
	baseURL string
}

// NewGeocodeTool creates the geocoding tool
func NewGeocodeTool() *GeocodeTool {
	return &GeocodeTool{fetch: newFetcher(), baseURL: openMeteoGeocodeURL}
}

func (t *GeocodeTool) Name() string { return "geocode_location" }

func (t *GeocodeTool) Description() string {
	return "Resolve a city or place name to latitude and longitude coordinates."
}

func (t *GeocodeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "City or place name to look up",
			},
		},
		"required": []string{"name"},
	}
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
	} `json:"results"`
}

func (t *GeocodeTool) Execute(ctx context.Context, params map[string]any, _ Context) (any, error) {
	name, ok := StringParam(params, "name")
	if !ok || name == "" {
		return BusinessError("name is required"), nil
	}

	u := fmt.Sprintf("%s?name=%s&count=1&format=json", t.baseURL, url.QueryEscape(name))
	var resp geocodeResponse
	if err := t.fetch.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("geocoding failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return BusinessError(fmt.Sprintf("no results for %q", name)), nil
	}

	r := resp.Results[0]
	return map[string]any{
		"name":      r.Name,
		"latitude":  r.Latitude,
		"longitude": r.Longitude,
		"country":   r.Country,
		"region":    r.Admin1,
	}, nil
}
