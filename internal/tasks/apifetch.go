// Package tasks implements the task stages bound to each workflow.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
	"github.com/Divas-Gupta30/agentgate/internal/generation"
	"github.com/Divas-Gupta30/agentgate/internal/graph"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/metrics"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
	DefaultFrankfurter  = "https://api.frankfurter.app/latest"
)

const answerSystemInstruction = "You are an API fetching assistant. Answer the user's request in one or two " +
	"concise, friendly sentences using only the data provided. Do not add facts, forecasts or advice " +
	"that the data does not contain."

// Cache is the fetch cache. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Endpoints overrides the public API base URLs.
type Endpoints struct {
	Geocoding   string
	Forecast    string
	Frankfurter string
}

// WeatherData is the current weather at a resolved location.
type WeatherData struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"wind_speed"`
	WeatherCode int     `json:"weather_code"`
	Unit        string  `json:"unit"`
}

// ExchangeRate is the latest rate for one currency pair.
type ExchangeRate struct {
	Base   string  `json:"base"`
	Target string  `json:"target"`
	Rate   float64 `json:"rate"`
	Date   string  `json:"date"`
}

// APIMetadata records where fetched data came from.
type APIMetadata struct {
	Provider  string   `json:"provider"`
	Endpoints []string `json:"endpoints"`
	Source    string   `json:"source"` // "api" or "cache"
	Timestamp string   `json:"timestamp"`
}

// fetched is what the answer is grounded in and what the judge checks.
type fetched struct {
	Weather      *WeatherData  `json:"weather,omitempty"`
	ExchangeRate *ExchangeRate `json:"exchange_rate,omitempty"`
	Metadata     APIMetadata   `json:"api_metadata"`
}

// APIFetcher is the task stage for weather and exchange_rate.
type APIFetcher struct {
	gen       generation.Generator
	cache     Cache
	client    *http.Client
	endpoints Endpoints
	logger    *zap.Logger
	now       func() time.Time
}

type APIFetcherOption func(*APIFetcher)

func WithCache(c Cache) APIFetcherOption {
	return func(a *APIFetcher) { a.cache = c }
}

func WithHTTPClient(c *http.Client) APIFetcherOption {
	return func(a *APIFetcher) { a.client = c }
}

func WithEndpoints(e Endpoints) APIFetcherOption {
	return func(a *APIFetcher) {
		if e.Geocoding != "" {
			a.endpoints.Geocoding = e.Geocoding
		}
		if e.Forecast != "" {
			a.endpoints.Forecast = e.Forecast
		}
		if e.Frankfurter != "" {
			a.endpoints.Frankfurter = e.Frankfurter
		}
	}
}

func WithAPILogger(l *zap.Logger) APIFetcherOption {
	return func(a *APIFetcher) { a.logger = logging.OrNop(l) }
}

func NewAPIFetcher(gen generation.Generator, opts ...APIFetcherOption) (*APIFetcher, error) {
	if gen == nil {
		return nil, fmt.Errorf("api fetcher: generator is required")
	}
	a := &APIFetcher{
		gen:    gen,
		client: &http.Client{Timeout: 10 * time.Second},
		endpoints: Endpoints{
			Geocoding:   DefaultGeocodingURL,
			Forecast:    DefaultForecastURL,
			Frankfurter: DefaultFrankfurter,
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Execute fetches the requested data and answers from it.
func (a *APIFetcher) Execute(ctx context.Context, req graph.Request) (graph.TaskOutput, error) {
	var (
		data    fetched
		request string
		err     error
	)
	switch req.Capability {
	case graph.CapabilityWeather:
		data, err = a.weather(ctx, req.Param("city"), req.ParamOr("unit", "celsius"))
		request = fmt.Sprintf("What is the current weather in %s?", req.Param("city"))
	case graph.CapabilityExchangeRate:
		data, err = a.exchangeRate(ctx, req.Param("base"), req.Param("target"))
		request = fmt.Sprintf("What is the exchange rate from %s to %s?", req.Param("base"), req.Param("target"))
	default:
		return graph.TaskOutput{}, fmt.Errorf("api fetcher cannot handle capability %q", req.Capability)
	}
	if err != nil {
		return graph.TaskOutput{}, err
	}

	source, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return graph.TaskOutput{}, err
	}
	prompt := fmt.Sprintf("User request: %s\n\nFetched data (JSON):\n%s", request, source)
	answer, err := a.gen.Generate(ctx, prompt, answerSystemInstruction, 0.2)
	if err != nil {
		return graph.TaskOutput{}, fmt.Errorf("answering from fetched data: %w", err)
	}
	answer = strings.TrimSpace(answer)

	payload := map[string]any{
		"conversational_response": answer,
		"api_metadata":            data.Metadata,
	}
	if data.Weather != nil {
		payload["weather"] = data.Weather
	}
	if data.ExchangeRate != nil {
		payload["exchange_rate"] = data.ExchangeRate
	}
	return graph.TaskOutput{
		Evidence: evaluation.EvidencePair{ProducedArtifact: answer, SourceMaterial: string(source)},
		Payload:  payload,
	}, nil
}

func (a *APIFetcher) weather(ctx context.Context, city, unit string) (fetched, error) {
	if city == "" {
		return fetched{}, fmt.Errorf("%w: weather needs a city", apperr.ErrInvalid)
	}
	unit = strings.ToLower(unit)
	if unit != "celsius" && unit != "fahrenheit" {
		return fetched{}, fmt.Errorf("%w: unit must be celsius or fahrenheit, got %q", apperr.ErrInvalid, unit)
	}

	key := fmt.Sprintf("weather:%s:%s", strings.ToLower(city), unit)
	if data, ok := a.fromCache(ctx, key); ok {
		return data, nil
	}

	var geo struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	q := url.Values{"name": {city}, "count": {"1"}}
	if err := a.getJSON(ctx, "open-meteo", a.endpoints.Geocoding, q, &geo); err != nil {
		return fetched{}, err
	}
	if len(geo.Results) == 0 {
		return fetched{}, fmt.Errorf("city %q not found", city)
	}
	loc := geo.Results[0]

	var forecast struct {
		Current struct {
			Temperature float64 `json:"temperature"`
			WindSpeed   float64 `json:"windspeed"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	q = url.Values{
		"latitude":         {fmt.Sprintf("%.4f", loc.Latitude)},
		"longitude":        {fmt.Sprintf("%.4f", loc.Longitude)},
		"current_weather":  {"true"},
		"temperature_unit": {unit},
	}
	if err := a.getJSON(ctx, "open-meteo", a.endpoints.Forecast, q, &forecast); err != nil {
		return fetched{}, err
	}

	name := loc.Name
	if loc.Country != "" {
		name += ", " + loc.Country
	}
	data := fetched{
		Weather: &WeatherData{
			City:        name,
			Temperature: forecast.Current.Temperature,
			WindSpeed:   forecast.Current.WindSpeed,
			WeatherCode: forecast.Current.WeatherCode,
			Unit:        unit,
		},
		Metadata: APIMetadata{
			Provider:  "Open-Meteo",
			Endpoints: []string{a.endpoints.Geocoding, a.endpoints.Forecast},
			Source:    "api",
			Timestamp: a.now().UTC().Format(time.RFC3339),
		},
	}
	a.toCache(ctx, key, data)
	return data, nil
}

func (a *APIFetcher) exchangeRate(ctx context.Context, base, target string) (fetched, error) {
	base, target = strings.ToUpper(base), strings.ToUpper(target)
	if base == "" || target == "" {
		return fetched{}, fmt.Errorf("%w: exchange_rate needs base and target currencies", apperr.ErrInvalid)
	}

	key := fmt.Sprintf("fx:%s:%s", base, target)
	if data, ok := a.fromCache(ctx, key); ok {
		return data, nil
	}

	var resp struct {
		Base  string             `json:"base"`
		Date  string             `json:"date"`
		Rates map[string]float64 `json:"rates"`
	}
	q := url.Values{"from": {base}, "to": {target}}
	if err := a.getJSON(ctx, "frankfurter", a.endpoints.Frankfurter, q, &resp); err != nil {
		return fetched{}, err
	}
	rate, ok := resp.Rates[target]
	if !ok {
		return fetched{}, fmt.Errorf("no %s rate for base %s", target, base)
	}

	data := fetched{
		ExchangeRate: &ExchangeRate{Base: base, Target: target, Rate: rate, Date: resp.Date},
		Metadata: APIMetadata{
			Provider:  "Frankfurter",
			Endpoints: []string{a.endpoints.Frankfurter},
			Source:    "api",
			Timestamp: a.now().UTC().Format(time.RFC3339),
		},
	}
	a.toCache(ctx, key, data)
	return data, nil
}

func (a *APIFetcher) getJSON(ctx context.Context, provider, endpoint string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		metrics.ExternalAPICallsTotal.WithLabelValues(provider, "error").Inc()
		return apperr.Timeout(provider, fmt.Errorf("calling %s: %w", provider, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ExternalAPICallsTotal.WithLabelValues(provider, "error").Inc()
		return fmt.Errorf("%s request failed with status: %s", provider, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		metrics.ExternalAPICallsTotal.WithLabelValues(provider, "error").Inc()
		return fmt.Errorf("decoding %s response: %w", provider, err)
	}
	metrics.ExternalAPICallsTotal.WithLabelValues(provider, "success").Inc()
	return nil
}

func (a *APIFetcher) fromCache(ctx context.Context, key string) (fetched, bool) {
	if a.cache == nil {
		return fetched{}, false
	}
	var data fetched
	hit, err := a.cache.Get(ctx, key, &data)
	if err != nil {
		a.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if !hit || err != nil {
		metrics.CacheMissesTotal.Inc()
		return fetched{}, false
	}
	metrics.CacheHitsTotal.Inc()
	data.Metadata.Source = "cache"
	return data, true
}

func (a *APIFetcher) toCache(ctx context.Context, key string, data fetched) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, key, data); err != nil {
		a.logger.Warn("failed to cache fetched data", zap.String("key", key), zap.Error(err))
	}
}
