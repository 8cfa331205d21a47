package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agriguardian/internal/config"
)

type fakeSearch struct {
	query string
	err   error
}

func (f *fakeSearch) Call(_ context.Context, input string) (string, error) {
	f.query = input
	if f.err != nil {
		return "", f.err
	}
	return "Black cotton soil is common.", nil
}

type apis struct {
	geo, weather, reverse http.HandlerFunc
	weatherCalls          atomic.Int32
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newService(t *testing.T, a *apis, search Searcher) *Service {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) { a.geo(w, r) })
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		a.weatherCalls.Add(1)
		a.weather(w, r)
	})
	mux.HandleFunc("/reverse", func(w http.ResponseWriter, r *http.Request) { a.reverse(w, r) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.LookupConfig{
		UserAgent:    "agriguardian-test",
		GeoIPURL:     srv.URL + "/json",
		WeatherURL:   srv.URL + "/forecast",
		NominatimURL: srv.URL + "/reverse",
	}
	return NewService(cfg, search, WithRetry(0, 0))
}

func okGeo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "lat": 18.52, "lon": 73.85})
}

func okWeather(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("current") != weatherFields {
		writeJSON(w, http.StatusBadRequest, map[string]any{"reason": "bad fields"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": map[string]float64{
		"temperature_2m": 31.5, "relative_humidity_2m": 48, "precipitation": 0.2, "wind_speed_10m": 11.3,
	}})
}

func failing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "down"})
}

func TestLocation(t *testing.T) {
	s := newService(t, &apis{geo: okGeo}, nil)
	assert.Equal(t, Location{Lat: 18.52, Lon: 73.85}, s.Location(context.Background()))
}

func TestLocation_FallsBack(t *testing.T) {
	s := newService(t, &apis{geo: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "fail", "message": "private range"})
	}}, nil)
	assert.Equal(t, DefaultLocation, s.Location(context.Background()))

	s = newService(t, &apis{geo: failing}, nil)
	assert.Equal(t, DefaultLocation, s.Location(context.Background()))
}

func TestCurrentWeather_Cached(t *testing.T) {
	a := &apis{geo: okGeo, weather: okWeather}
	s := newService(t, a, nil)

	w := s.CurrentWeather(context.Background())
	assert.Equal(t, Weather{Temperature: 31.5, Humidity: 48, Precipitation: 0.2, WindSpeed: 11.3}, w)

	_ = s.CurrentWeather(context.Background())
	assert.Equal(t, int32(1), a.weatherCalls.Load())
}

func TestCurrentWeather_Fallback(t *testing.T) {
	s := newService(t, &apis{geo: okGeo, weather: failing}, nil)
	assert.Equal(t, FallbackWeather, s.CurrentWeather(context.Background()))
}

func TestWeatherReport(t *testing.T) {
	s := newService(t, &apis{geo: okGeo, weather: okWeather}, nil)
	assert.JSONEq(t, `{"temperature":31.5,"humidity":48,"precipitation":0.2,"wind_speed":11.3}`, s.WeatherReport(context.Background()))

	s = newService(t, &apis{geo: okGeo, weather: failing}, nil)
	assert.JSONEq(t, `{"temperature":null,"humidity":null,"precipitation":null,"wind_speed":null}`, s.WeatherReport(context.Background()))
}

func TestConditions(t *testing.T) {
	assert.Equal(t, map[string]float64{
		"temperature": 25, "humidity": 60, "precipitation": 0, "wind_speed": 5,
	}, FallbackWeather.Conditions())
}

func TestCity(t *testing.T) {
	cases := []struct {
		name    string
		address map[string]string
		want    string
	}{
		{"city", map[string]string{"city": "Pune", "state": "Maharashtra"}, "Pune"},
		{"town", map[string]string{"town": "Baramati", "state": "Maharashtra"}, "Baramati"},
		{"village", map[string]string{"village": "Hivare Bazar"}, "Hivare Bazar"},
		{"state", map[string]string{"state": "Maharashtra"}, "Maharashtra"},
		{"nothing useful", map[string]string{"country": "India"}, "Unknown"},
		{"no address", nil, UnknownCity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newService(t, &apis{reverse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "18.52", r.URL.Query().Get("lat"))
				writeJSON(w, http.StatusOK, map[string]any{"address": tc.address})
			}}, nil)
			assert.Equal(t, tc.want, s.City(context.Background(), Location{Lat: 18.52, Lon: 73.85}))
		})
	}
}

func TestSoil(t *testing.T) {
	search := &fakeSearch{}
	s := newService(t, &apis{geo: okGeo, reverse: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"address": map[string]string{"city": "Pune"}})
	}}, search)

	got := s.Soil(context.Background())
	assert.Equal(t, "City: Pune\nSearch Query: soil type in Pune\nResults:\nBlack cotton soil is common.", got)
	assert.Equal(t, "soil type in Pune", search.query)
}

func TestSoil_SearchFailure(t *testing.T) {
	s := newService(t, &apis{geo: okGeo, reverse: failing}, &fakeSearch{err: errors.New("rate limited")})
	assert.Equal(t, SoilUnavailable, s.Soil(context.Background()))

	require.Equal(t, SoilUnavailable, newService(t, &apis{}, nil).Soil(context.Background()))
}
