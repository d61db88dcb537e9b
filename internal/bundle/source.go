package bundle

import "context"

// Sources never return an error alongside their result: every failure is
// captured inside the returned value so sibling fetches are unaffected.

// WeatherSource fetches forecast and observation data for a city and date.
type WeatherSource interface {
	Fetch(ctx context.Context, city City, date string) WeatherBundle
}

// MarketSource fetches a series' open contracts with order books.
type MarketSource interface {
	Fetch(ctx context.Context, series, date string) MarketSeriesResult
}

// EnsembleSource fetches the multi-model ensemble forecast.
type EnsembleSource interface {
	Fetch(ctx context.Context, city City, date string) EnsembleForecast
}
