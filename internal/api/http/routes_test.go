package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ksolden/weather-market-gateway/internal/bundle"
)

type countingWeather struct {
	calls int32
}

func (c *countingWeather) Fetch(ctx context.Context, city bundle.City, date string) bundle.WeatherBundle {
	atomic.AddInt32(&c.calls, 1)
	return bundle.WeatherBundle{Hourly: []bundle.HourlyPeriod{}, Ensemble: bundle.EmptyEnsemble()}
}

type countingMarkets struct {
	calls       int32
	panicSeries string
}

func (c *countingMarkets) Fetch(ctx context.Context, series, date string) bundle.MarketSeriesResult {
	atomic.AddInt32(&c.calls, 1)
	if c.panicSeries != "" && series == c.panicSeries {
		panic("schema drift in " + series)
	}
	return bundle.MarketSeriesResult{Series: series, Contracts: []bundle.Contract{{
		Ticker:      series + "-26FEB15-B40",
		YesSubTitle: "40° or above",
		OrderBook: &bundle.OrderBook{
			Yes: []bundle.PriceLevel{{Price: 45, Quantity: 100}},
			No:  []bundle.PriceLevel{{Price: 54, Quantity: 200}},
		},
	}}}
}

type countingEnsemble struct {
	calls int32
}

func (c *countingEnsemble) Fetch(ctx context.Context, city bundle.City, date string) bundle.EnsembleForecast {
	atomic.AddInt32(&c.calls, 1)
	return bundle.EmptyEnsemble()
}

var testCities = []bundle.City{
	{Code: "CHI", Name: "Chicago Midway", Station: "KMDW", HighSeries: "KXHIGHCHI", LowSeries: "KXLOWTCHI", TZ: "America/Chicago"},
	{Code: "NYC", Name: "New York (Central Park)", Station: "KNYC", HighSeries: "KXHIGHNYC", LowSeries: "KXLOWTNYC", TZ: "America/New_York"},
}

type testEnv struct {
	app      *fiber.App
	weather  *countingWeather
	markets  *countingMarkets
	ensemble *countingEnsemble
}

func newTestEnv(t *testing.T, panicSeries string) *testEnv {
	t.Helper()

	env := &testEnv{
		weather:  &countingWeather{},
		markets:  &countingMarkets{panicSeries: panicSeries},
		ensemble: &countingEnsemble{},
	}

	env.app = fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})

	svc := bundle.NewService(env.weather, env.markets, env.ensemble)
	RegisterRoutes(env.app, svc, testCities, false)

	return env
}

func (e *testEnv) get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, url, nil)
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func (e *testEnv) upstreamCalls() int32 {
	return atomic.LoadInt32(&e.weather.calls) +
		atomic.LoadInt32(&e.markets.calls) +
		atomic.LoadInt32(&e.ensemble.calls)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health struct {
		Status        string   `json:"status"`
		Authenticated bool     `json:"authenticated"`
		Cities        []string `json:"cities"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("bad health body: %v", err)
	}

	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.Authenticated {
		t.Error("authenticated should be false without credentials")
	}
	if len(health.Cities) != 2 || health.Cities[0] != "CHI" {
		t.Errorf("cities = %v", health.Cities)
	}
}

func TestBundle_MalformedDateRejectedBeforeFetching(t *testing.T) {
	env := newTestEnv(t, "")

	for _, date := range []string{"", "02-15-2026", "2026/02/15", "20260215", "tomorrow"} {
		resp, _ := env.get(t, "/bundle?date="+date)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("date %q: status = %d, want 400", date, resp.StatusCode)
		}
	}

	if calls := env.upstreamCalls(); calls != 0 {
		t.Errorf("made %d upstream calls for rejected dates, want 0", calls)
	}
}

func TestBundle_UnknownCitiesDropped(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.get(t, "/bundle?date=2026-02-15&cities=chi,ZZZ")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var envelope bundle.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}

	if len(envelope.Cities) != 1 {
		t.Fatalf("got %d cities, want 1", len(envelope.Cities))
	}
	if _, ok := envelope.Cities["CHI"]; !ok {
		t.Error("expected CHI in response")
	}
}

func TestBundle_NoValidCities(t *testing.T) {
	env := newTestEnv(t, "")

	resp, _ := env.get(t, "/bundle?date=2026-02-15&cities=ZZZ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if calls := env.upstreamCalls(); calls != 0 {
		t.Errorf("made %d upstream calls, want 0", calls)
	}
}

func TestBundle_DefaultsToAllCities(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.get(t, "/bundle?date=2026-02-15")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var envelope bundle.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}

	if len(envelope.Cities) != 2 {
		t.Errorf("got %d cities, want all 2", len(envelope.Cities))
	}
	if envelope.TargetDate != "2026-02-15" {
		t.Errorf("target_date = %q", envelope.TargetDate)
	}
	if _, err := uuid.Parse(envelope.RequestID); err != nil {
		t.Errorf("request_id %q is not a UUID", envelope.RequestID)
	}
	if len(envelope.Errors) != 0 {
		t.Errorf("unexpected errors: %v", envelope.Errors)
	}
}

func TestBundle_PanickingCityIsolated(t *testing.T) {
	// The NYC high-series fetch panics; CHI must still come back intact.
	env := newTestEnv(t, "KXHIGHNYC")

	resp, body := env.get(t, "/bundle?date=2026-02-15")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite city failure", resp.StatusCode)
	}

	var envelope bundle.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}

	if len(envelope.Errors) != 1 || envelope.Errors[0].City != "NYC" {
		t.Fatalf("errors = %v, want one NYC entry", envelope.Errors)
	}

	// NYC is replaced with a placeholder preserving identity.
	nyc, ok := envelope.Cities["NYC"]
	if !ok {
		t.Fatal("NYC placeholder missing from response")
	}
	if nyc.City != "New York (Central Park)" {
		t.Errorf("placeholder city = %q", nyc.City)
	}
	if len(nyc.Markets.High.Contracts) != 0 || len(nyc.Markets.Low.Contracts) != 0 {
		t.Error("placeholder must have empty market lists")
	}

	chi, ok := envelope.Cities["CHI"]
	if !ok {
		t.Fatal("CHI missing from response")
	}
	if len(chi.Markets.High.Contracts) != 1 {
		t.Error("CHI bundle should be fully populated")
	}
}

func TestBundle_BlankCitiesParamRejected(t *testing.T) {
	env := newTestEnv(t, "")

	resp, _ := env.get(t, "/bundle?date=2026-02-15&cities=%20%20")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for blank cities parameter", resp.StatusCode)
	}
	if calls := env.upstreamCalls(); calls != 0 {
		t.Errorf("made %d upstream calls, want 0", calls)
	}
}

func TestUnknownPathReturnsJSONError(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.get(t, "/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var errBody struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		t.Fatalf("404 body is not JSON: %v", err)
	}
	if !errBody.Error || errBody.Message == "" {
		t.Errorf("unexpected error body: %s", body)
	}
}

// Consumers index into the raw JSON, so the key layout is load-bearing:
// markets nested as {high, low}, yes_sub_title on each contract, and
// order-book levels as [price, quantity] pairs.
func TestBundle_ResponseShape(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.get(t, "/bundle?date=2026-02-15&cities=CHI")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var raw struct {
		Cities map[string]struct {
			Markets map[string]struct {
				Contracts []map[string]json.RawMessage `json:"contracts"`
			} `json:"markets"`
		} `json:"cities"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}

	chi, ok := raw.Cities["CHI"]
	if !ok {
		t.Fatal("CHI missing from response")
	}
	high, ok := chi.Markets["high"]
	if !ok {
		t.Fatalf("markets.high missing; got market keys %v", keysOf(chi.Markets))
	}
	if _, ok := chi.Markets["low"]; !ok {
		t.Fatal("markets.low missing")
	}
	if len(high.Contracts) != 1 {
		t.Fatalf("got %d high contracts, want 1", len(high.Contracts))
	}

	contract := high.Contracts[0]
	if _, ok := contract["yes_sub_title"]; !ok {
		t.Error("contract is missing yes_sub_title")
	}

	var book struct {
		No [][]int `json:"no"`
	}
	if err := json.Unmarshal(contract["orderbook"], &book); err != nil {
		t.Fatalf("order-book levels are not [price, quantity] pairs: %v", err)
	}
	if len(book.No) != 1 || book.No[0][0] != 54 || book.No[0][1] != 200 {
		t.Errorf("no side = %v, want [[54 200]]", book.No)
	}
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
