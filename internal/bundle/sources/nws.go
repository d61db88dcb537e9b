// Package sources implements the upstream fetchers behind the bundle service.
package sources

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ksolden/weather-market-gateway/internal/bundle"
	"github.com/ksolden/weather-market-gateway/internal/gridcache"
	"github.com/ksolden/weather-market-gateway/internal/upstream"
)

// NWSBaseURL is the production weather-service host.
const NWSBaseURL = "https://api.weather.gov"

// The NWS API requires an identifying User-Agent.
const nwsUserAgent = "weather-market-gateway/1.0"

// Weather fetches NWS forecast and observation data for a city.
type Weather struct {
	fetcher *upstream.Fetcher
	cache   *gridcache.Cache
	baseURL string
}

// NewWeather creates a Weather source. An empty baseURL selects the
// production host.
func NewWeather(fetcher *upstream.Fetcher, cache *gridcache.Cache, baseURL string) *Weather {
	if baseURL == "" {
		baseURL = NWSBaseURL
	}
	return &Weather{
		fetcher: fetcher,
		cache:   cache,
		baseURL: baseURL,
	}
}

type hourlyForecast struct {
	Properties struct {
		Periods []struct {
			StartTime     string `json:"startTime"`
			Temperature   int    `json:"temperature"`
			WindSpeed     string `json:"windSpeed"`
			ShortForecast string `json:"shortForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

type pointsResponse struct {
	Properties struct {
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type observationResponse struct {
	Properties struct {
		Temperature struct {
			Value *float64 `json:"value"`
		} `json:"temperature"`
		TextDescription string `json:"textDescription"`
		Timestamp       string `json:"timestamp"`
	} `json:"properties"`
}

// Fetch retrieves the hourly forecast for the target date plus the latest
// station observation. A gridpoint or hourly failure fails the whole bundle
// with its error captured; an observation failure only leaves the
// observation fields nil.
func (w *Weather) Fetch(ctx context.Context, city bundle.City, date string) bundle.WeatherBundle {
	wb := bundle.WeatherBundle{
		Hourly:   []bundle.HourlyPeriod{},
		Ensemble: bundle.EmptyEnsemble(),
	}

	forecastURL, err := w.forecastURL(ctx, city)
	if err != nil {
		msg := fmt.Sprintf("resolve gridpoint: %v", err)
		wb.Error = &msg
		return wb
	}

	var hf hourlyForecast
	if err := w.fetcher.GetJSON(ctx, forecastURL, w.headers(), &hf); err != nil {
		msg := fmt.Sprintf("hourly forecast: %v", err)
		wb.Error = &msg
		return wb
	}

	loc, err := time.LoadLocation(city.TZ)
	if err != nil {
		loc = time.UTC
	}

	// Period timestamps from the gridpoint API already carry the local
	// offset, so a prefix match selects the city's calendar date.
	for _, p := range hf.Properties.Periods {
		if !strings.HasPrefix(p.StartTime, date) {
			continue
		}

		hour := p.StartTime
		if ts, err := time.Parse(time.RFC3339, p.StartTime); err == nil {
			hour = ts.In(loc).Format("03:04 PM MST")
		}

		wb.Hourly = append(wb.Hourly, bundle.HourlyPeriod{
			Hour:      hour,
			ISOTime:   p.StartTime,
			TempF:     p.Temperature,
			Wind:      p.WindSpeed,
			ShortDesc: p.ShortForecast,
		})
	}

	if len(wb.Hourly) > 0 {
		high, low := wb.Hourly[0].TempF, wb.Hourly[0].TempF
		for _, h := range wb.Hourly[1:] {
			if h.TempF > high {
				high = h.TempF
			}
			if h.TempF < low {
				low = h.TempF
			}
		}
		wb.PredictedHighF = &high
		wb.PredictedLowF = &low

		// First hour at which each extreme occurs.
		for i := range wb.Hourly {
			if wb.HighHour == nil && wb.Hourly[i].TempF == high {
				wb.HighHour = &wb.Hourly[i].Hour
			}
			if wb.LowHour == nil && wb.Hourly[i].TempF == low {
				wb.LowHour = &wb.Hourly[i].Hour
			}
		}
	}

	w.attachObservation(ctx, city, &wb)

	return wb
}

// attachObservation fetches the latest station observation. Failures are
// silent: the predicted fields from the hourly forecast must survive an
// observation outage.
func (w *Weather) attachObservation(ctx context.Context, city bundle.City, wb *bundle.WeatherBundle) {
	obsURL := fmt.Sprintf("%s/stations/%s/observations/latest", w.baseURL, city.Station)

	var obs observationResponse
	if err := w.fetcher.GetJSON(ctx, obsURL, w.headers(), &obs); err != nil {
		return
	}

	if obs.Properties.Temperature.Value != nil {
		f := celsiusToFahrenheit(*obs.Properties.Temperature.Value)
		wb.CurrentTempF = &f
	}
	if obs.Properties.TextDescription != "" {
		desc := obs.Properties.TextDescription
		wb.CurrentDesc = &desc
	}
	if obs.Properties.Timestamp != "" {
		ts := obs.Properties.Timestamp
		wb.ObservedAt = &ts
	}
}

// forecastURL resolves the city's hourly-forecast URL via the points API,
// memoizing the result.
func (w *Weather) forecastURL(ctx context.Context, city bundle.City) (string, error) {
	if url, ok := w.cache.Get(city.Code); ok {
		return url, nil
	}
	return w.resolveGridpoint(ctx, city)
}

// RefreshGridpoint re-resolves a city's gridpoint unconditionally. Used by
// the cache warmer.
func (w *Weather) RefreshGridpoint(ctx context.Context, city bundle.City) error {
	_, err := w.resolveGridpoint(ctx, city)
	return err
}

func (w *Weather) resolveGridpoint(ctx context.Context, city bundle.City) (string, error) {
	pointsURL := fmt.Sprintf("%s/points/%s,%s",
		w.baseURL,
		strconv.FormatFloat(city.Lat, 'f', -1, 64),
		strconv.FormatFloat(city.Lon, 'f', -1, 64),
	)

	var pts pointsResponse
	if err := w.fetcher.GetJSON(ctx, pointsURL, w.headers(), &pts); err != nil {
		return "", err
	}
	if pts.Properties.ForecastHourly == "" {
		return "", fmt.Errorf("points response for %s has no hourly forecast URL", city.Code)
	}

	w.cache.Put(city.Code, pts.Properties.ForecastHourly)
	return pts.Properties.ForecastHourly, nil
}

func (w *Weather) headers() map[string]string {
	return map[string]string{"User-Agent": nwsUserAgent}
}

// celsiusToFahrenheit converts and rounds to one decimal place.
func celsiusToFahrenheit(c float64) float64 {
	return math.Round((c*9/5+32)*10) / 10
}
