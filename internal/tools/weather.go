package tools

import (
	"context"
	"fmt"
)

const openMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"

// WeatherTool fetches current weather conditions for a coordinate from the
// Open-Meteo API
type WeatherTool struct {
	fetch   *fetcher
	baseURL string
}

// NewWeatherTool creates the weather tool
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{fetch: newFetcher(), baseURL: openMeteoForecastURL}
}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get the current weather for a location given its latitude and longitude coordinates."
}

func (t *WeatherTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"latitude": map[string]any{
				"type":        "number",
				"description": "Latitude of the location",
			},
			"longitude": map[string]any{
				"type":        "number",
				"description": "Longitude of the location",
			},
		},
		"required": []string{"latitude", "longitude"},
	}
}

type openMeteoResponse struct {
	CurrentWeather struct {
		Temperature   float64 `json:"temperature"`
		WindSpeed     float64 `json:"windspeed"`
		WindDirection float64 `json:"winddirection"`
		WeatherCode   int     `json:"weathercode"`
		IsDay         int     `json:"is_day"`
		Time          string  `json:"time"`
	} `json:"current_weather"`
}

func (t *WeatherTool) Execute(ctx context.Context, params map[string]any, _ Context) (any, error) {
	lat, ok := FloatParam(params, "latitude")
	if !ok {
		return BusinessError("latitude is required"), nil
	}
	lon, ok := FloatParam(params, "longitude")
	if !ok {
		return BusinessError("longitude is required"), nil
	}

	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current_weather=true", t.baseURL, lat, lon)
	var resp openMeteoResponse
	if err := t.fetch.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("weather lookup failed: %w", err)
	}

	return map[string]any{
		"latitude":      lat,
		"longitude":     lon,
		"temperatureC":  resp.CurrentWeather.Temperature,
		"windSpeedKmh":  resp.CurrentWeather.WindSpeed,
		"windDirection": resp.CurrentWeather.WindDirection,
		"weatherCode":   resp.CurrentWeather.WeatherCode,
		"isDay":         resp.CurrentWeather.IsDay == 1,
		"observedAt":    resp.CurrentWeather.Time,
	}, nil
}
