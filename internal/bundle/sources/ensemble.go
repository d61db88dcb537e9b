package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ksolden/weather-market-gateway/internal/bundle"
	"github.com/ksolden/weather-market-gateway/internal/upstream"
)

// EnsembleBaseURL is the production ensemble-forecast host.
const EnsembleBaseURL = "https://ensemble-api.open-meteo.com/v1/ensemble"

const (
	highMemberPrefix = "temperature_2m_max"
	lowMemberPrefix  = "temperature_2m_min"
)

// Ensemble fetches multi-model daily high/low forecasts. The API is
// unauthenticated.
type Ensemble struct {
	fetcher *upstream.Fetcher
	baseURL string
}

// NewEnsemble creates an Ensemble source. An empty baseURL selects the
// production host.
func NewEnsemble(fetcher *upstream.Fetcher, baseURL string) *Ensemble {
	if baseURL == "" {
		baseURL = EnsembleBaseURL
	}
	return &Ensemble{
		fetcher: fetcher,
		baseURL: baseURL,
	}
}

// Fetch retrieves the one-day ensemble forecast for a city and flattens the
// per-model daily fields into high/low member lists. Never raises; any
// failure yields empty members with the error recorded.
func (e *Ensemble) Fetch(ctx context.Context, city bundle.City, date string) bundle.EnsembleForecast {
	ens := bundle.EmptyEnsemble()

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(city.Lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(city.Lon, 'f', -1, 64))
	values.Set("daily", highMemberPrefix+","+lowMemberPrefix)
	values.Set("models", "gfs_seamless")
	values.Set("temperature_unit", "fahrenheit")
	values.Set("start_date", date)
	values.Set("end_date", date)

	var payload struct {
		Daily map[string]json.RawMessage `json:"daily"`
	}

	if err := e.fetcher.GetJSON(ctx, e.baseURL+"?"+values.Encode(), nil, &payload); err != nil {
		msg := fmt.Sprintf("ensemble forecast: %v", err)
		ens.Error = &msg
		return ens
	}

	// Field names encode statistic + optional member + model, e.g.
	// temperature_2m_max_member03_gfs025. Each series holds one value for
	// the single requested day; absent values are skipped.
	for name, raw := range payload.Daily {
		isHigh := strings.HasPrefix(name, highMemberPrefix)
		isLow := strings.HasPrefix(name, lowMemberPrefix)
		if !isHigh && !isLow {
			continue
		}

		var series []*float64
		if err := json.Unmarshal(raw, &series); err != nil {
			continue
		}
		if len(series) == 0 || series[0] == nil {
			continue
		}

		if isHigh {
			ens.HighMembers = append(ens.HighMembers, *series[0])
		} else {
			ens.LowMembers = append(ens.LowMembers, *series[0])
		}
	}

	ens.MemberCount = len(ens.HighMembers)
	if len(ens.LowMembers) > ens.MemberCount {
		ens.MemberCount = len(ens.LowMembers)
	}

	return ens
}
