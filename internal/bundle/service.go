package bundle

import (
	"context"
	"sync"
)

// Service orchestrates the per-city sub-fetches and merges their results.
type Service struct {
	weather  WeatherSource
	markets  MarketSource
	ensemble EnsembleSource
}

// NewService creates a new Service.
func NewService(weather WeatherSource, markets MarketSource, ensemble EnsembleSource) *Service {
	return &Service{
		weather:  weather,
		markets:  markets,
		ensemble: ensemble,
	}
}

// BuildCityBundle runs the weather, high-series, low-series and ensemble
// fetches concurrently for one city and merges the results. The four
// sub-fetches are independent; no failure in one aborts the others, and each
// carries its own error field.
// A sub-fetch that panics would otherwise take the process down with it;
// the panic is re-raised on the calling goroutine instead, where the router
// turns it into a per-city error.
func (s *Service) BuildCityBundle(ctx context.Context, city City, date string) CityBundle {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		aborted any

		weather WeatherBundle
		ens     EnsembleForecast
		high    MarketSeriesResult
		low     MarketSeriesResult
	)

	run := func(fetch func()) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				aborted = r
				mu.Unlock()
			}
		}()
		fetch()
	}

	wg.Add(4)
	go run(func() {
		weather = s.weather.Fetch(ctx, city, date)
	})
	go run(func() {
		high = s.markets.Fetch(ctx, city.HighSeries, date)
	})
	go run(func() {
		low = s.markets.Fetch(ctx, city.LowSeries, date)
	})
	go run(func() {
		ens = s.ensemble.Fetch(ctx, city, date)
	})
	wg.Wait()

	if aborted != nil {
		panic(aborted)
	}

	weather.Ensemble = ens

	return CityBundle{
		City:    city.Name,
		Station: city.Station,
		Weather: weather,
		Markets: CityMarkets{High: high, Low: low},
	}
}
