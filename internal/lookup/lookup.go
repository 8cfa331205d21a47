package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"agriguardian/internal/config"
)

const (
	SoilUnavailable = "Unable to determine soil type information at this time."
	UnknownCity     = "Unknown City"

	weatherFields = "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m"
)

// DefaultLocation is used when IP geolocation fails (New York).
var DefaultLocation = Location{Lat: 40.7128, Lon: -74.0060}

// FallbackWeather is used when the weather API cannot be reached.
var FallbackWeather = Weather{Temperature: 25.0, Humidity: 60.0, Precipitation: 0.0, WindSpeed: 5.0}

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Weather struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"wind_speed"`
}

// Conditions keys the reading by the names used in agent instructions.
func (w Weather) Conditions() map[string]float64 {
	return map[string]float64{
		"temperature":   w.Temperature,
		"humidity":      w.Humidity,
		"precipitation": w.Precipitation,
		"wind_speed":    w.WindSpeed,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Searcher runs a web search; the DuckDuckGo tool satisfies it.
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// Service resolves location, weather and soil information for the agent tools.
type Service struct {
	client  *resty.Client
	cfg     config.LookupConfig
	weather *expirable.LRU[string, Weather]
	search  Searcher
}

type Option func(*Service)

// WithRetry overrides the retry policy of the HTTP client.
func WithRetry(count int, wait time.Duration) Option {
	return func(s *Service) {
		s.client.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

func NewService(cfg *config.LookupConfig, search Searcher, opts ...Option) *Service {
	ttl := time.Duration(cfg.WeatherCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	client := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent).
		SetRetryCount(5).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(retryCondition)

	s := &Service{
		client:  client,
		cfg:     *cfg,
		weather: expirable.NewLRU[string, Weather](128, nil, ttl),
		search:  search,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// retryCondition retries network errors, throttling and server errors
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

// Location geolocates the caller's public IP, falling back to DefaultLocation.
func (s *Service) Location(ctx context.Context) Location {
	var body struct {
		Status string  `json:"status"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
	}
	resp, err := s.client.R().SetContext(ctx).SetResult(&body).Get(s.cfg.GeoIPURL)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("status %d", resp.StatusCode())
	}
	if err == nil && body.Status != "" && body.Status != "success" {
		err = fmt.Errorf("geolocation status %q", body.Status)
	}
	if err == nil && body.Lat == 0 && body.Lon == 0 {
		err = fmt.Errorf("empty coordinates")
	}
	if err != nil {
		log.Error().Err(err).Msg("Location error")
		return DefaultLocation
	}
	return Location{Lat: body.Lat, Lon: body.Lon}
}

// FetchWeather reads current conditions from Open-Meteo, cached per rounded coordinate.
func (s *Service) FetchWeather(ctx context.Context, loc Location) (Weather, error) {
	key := fmt.Sprintf("%.2f,%.2f", loc.Lat, loc.Lon)
	if w, ok := s.weather.Get(key); ok {
		return w, nil
	}

	var body struct {
		Current struct {
			Temperature   float64 `json:"temperature_2m"`
			Humidity      float64 `json:"relative_humidity_2m"`
			Precipitation float64 `json:"precipitation"`
			WindSpeed     float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":  formatFloat(loc.Lat),
			"longitude": formatFloat(loc.Lon),
			"current":   weatherFields,
		}).
		SetResult(&body).
		Get(s.cfg.WeatherURL)
	if err != nil {
		return Weather{}, fmt.Errorf("fetch weather: %w", err)
	}
	if resp.IsError() {
		return Weather{}, fmt.Errorf("fetch weather: status %d", resp.StatusCode())
	}

	w := Weather{
		Temperature:   body.Current.Temperature,
		Humidity:      body.Current.Humidity,
		Precipitation: body.Current.Precipitation,
		WindSpeed:     body.Current.WindSpeed,
	}
	s.weather.Add(key, w)
	return w, nil
}

// CurrentWeather returns the weather at the caller's location or FallbackWeather.
func (s *Service) CurrentWeather(ctx context.Context) Weather {
	w, err := s.FetchWeather(ctx, s.Location(ctx))
	if err != nil {
		log.Error().Err(err).Msg("Error fetching weather data")
		return FallbackWeather
	}
	return w
}

// WeatherReport is the weather tool output: a JSON object whose values are null on failure.
func (s *Service) WeatherReport(ctx context.Context) string {
	report := map[string]*float64{"temperature": nil, "humidity": nil, "precipitation": nil, "wind_speed": nil}
	w, err := s.FetchWeather(ctx, s.Location(ctx))
	if err != nil {
		log.Error().Err(err).Msg("Weather fetch error")
	} else {
		report["temperature"] = &w.Temperature
		report["humidity"] = &w.Humidity
		report["precipitation"] = &w.Precipitation
		report["wind_speed"] = &w.WindSpeed
	}
	b, _ := json.Marshal(report)
	return string(b)
}

// City reverse geocodes loc, preferring city, town, village, then state.
func (s *Service) City(ctx context.Context, loc Location) string {
	var body struct {
		Address map[string]string `json:"address"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format":          "jsonv2",
			"lat":             formatFloat(loc.Lat),
			"lon":             formatFloat(loc.Lon),
			"accept-language": "en",
		}).
		SetResult(&body).
		Get(s.cfg.NominatimURL)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("status %d", resp.StatusCode())
	}
	if err == nil && len(body.Address) == 0 {
		err = fmt.Errorf("could not reverse geocode coords %v", loc)
	}
	if err != nil {
		log.Error().Err(err).Msg("Geocoding error")
		return UnknownCity
	}

	for _, key := range []string{"city", "town", "village", "state"} {
		if v := body.Address[key]; v != "" {
			return v
		}
	}
	return "Unknown"
}

// Soil searches the web for the soil type around the caller's location.
func (s *Service) Soil(ctx context.Context) string {
	if s.search == nil {
		return SoilUnavailable
	}
	city := s.City(ctx, s.Location(ctx))
	query := "soil type in " + city
	results, err := s.search.Call(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Soil type search error")
		return SoilUnavailable
	}
	return fmt.Sprintf("City: %s\nSearch Query: %s\nResults:\n%s", city, query, results)
}
