package bundle

import "encoding/json"

// City is one configured market city. The table is loaded once at startup
// and read-only afterwards.
type City struct {
	Code    string  `yaml:"code" json:"code"`
	Name    string  `yaml:"name" json:"name"`
	Station string  `yaml:"station" json:"station"`
	Lat     float64 `yaml:"lat" json:"lat"`
	Lon     float64 `yaml:"lon" json:"lon"`
	// Series tickers for the daily-high and daily-low market families.
	HighSeries string `yaml:"high_series" json:"high_series"`
	LowSeries  string `yaml:"low_series" json:"low_series"`
	TZ         string `yaml:"tz" json:"tz"`
}

// HourlyPeriod is one hour of forecast for the target date.
type HourlyPeriod struct {
	Hour      string `json:"hour"`
	ISOTime   string `json:"iso_time"`
	TempF     int    `json:"temp_f"`
	Wind      string `json:"wind"`
	ShortDesc string `json:"short_desc"`
}

// EnsembleForecast holds per-model daily high/low temperature members.
// Members are unordered; empty with Error set when the fetch failed.
type EnsembleForecast struct {
	HighMembers []float64 `json:"high_members"`
	LowMembers  []float64 `json:"low_members"`
	MemberCount int       `json:"member_count"`
	Error       *string   `json:"error,omitempty"`
}

// WeatherBundle is the weather view for one city and date.
// When Error is set all numeric fields are nil and Hourly is empty.
type WeatherBundle struct {
	PredictedHighF *int           `json:"predicted_high_f"`
	PredictedLowF  *int           `json:"predicted_low_f"`
	HighHour       *string        `json:"high_hour"`
	LowHour        *string        `json:"low_hour"`
	Hourly         []HourlyPeriod `json:"hourly"`

	// Latest station observation; nil when unavailable (never an error).
	CurrentTempF *float64 `json:"current_temp_f"`
	CurrentDesc  *string  `json:"current_desc"`
	ObservedAt   *string  `json:"observed_at"`

	Ensemble EnsembleForecast `json:"ensemble"`
	Error    *string          `json:"error,omitempty"`
}

// PriceLevel is one resting order-book level, price in cents. On the wire it
// is a [price, quantity] pair, matching the exchange's own book encoding.
type PriceLevel struct {
	Price    int
	Quantity int
}

func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{l.Price, l.Quantity})
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}

// OrderBook holds both sides of a contract's book. On fetch failure both
// sides are empty and Error is set; this placeholder stands in for the book
// rather than leaving it absent.
type OrderBook struct {
	Yes   []PriceLevel `json:"yes"`
	No    []PriceLevel `json:"no"`
	Error *string      `json:"error,omitempty"`
}

// Contract is one tradable market. OrderBook is nil only before enrichment;
// after the order-book phase it is always present.
type Contract struct {
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
	// YesSubTitle describes the yes side's threshold ("40° or above",
	// "39° or below") and is what consumers parse to classify buckets.
	YesSubTitle  string     `json:"yes_sub_title"`
	Subtitle     string     `json:"subtitle"`
	CloseTime    string     `json:"close_time"`
	YesBid       int        `json:"yes_bid"`
	YesAsk       int        `json:"yes_ask"`
	NoBid        int        `json:"no_bid"`
	NoAsk        int        `json:"no_ask"`
	LastPrice    int        `json:"last_price"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	OrderBook    *OrderBook `json:"orderbook"`
}

// MarketSeriesResult is the outcome of fetching one series' open markets.
type MarketSeriesResult struct {
	Series    string     `json:"series"`
	Contracts []Contract `json:"contracts"`
	Error     *string    `json:"error,omitempty"`
}

// CityMarkets groups the two market families for one city.
type CityMarkets struct {
	High MarketSeriesResult `json:"high"`
	Low  MarketSeriesResult `json:"low"`
}

// CityBundle is the merged result for one city.
type CityBundle struct {
	City    string        `json:"city"`
	Station string        `json:"station"`
	Weather WeatherBundle `json:"weather"`
	Markets CityMarkets   `json:"markets"`
}

// CityError records a city whose orchestration failed outright.
type CityError struct {
	City  string `json:"city"`
	Error string `json:"error"`
}

// Envelope is the full /bundle response.
type Envelope struct {
	GeneratedAt string                `json:"generated_at"`
	RequestID   string                `json:"request_id"`
	TargetDate  string                `json:"target_date"`
	Cities      map[string]CityBundle `json:"cities"`
	Errors      []CityError           `json:"errors"`
}

// EmptyEnsemble returns a zero-member forecast with allocated slices so the
// JSON renders as empty arrays rather than null.
func EmptyEnsemble() EnsembleForecast {
	return EnsembleForecast{HighMembers: []float64{}, LowMembers: []float64{}}
}

// PlaceholderBundle is substituted for a city whose orchestration failed
// outright: name and station preserved, everything else empty.
func PlaceholderBundle(city City) CityBundle {
	return CityBundle{
		City:    city.Name,
		Station: city.Station,
		Weather: WeatherBundle{
			Hourly:   []HourlyPeriod{},
			Ensemble: EmptyEnsemble(),
		},
		Markets: CityMarkets{
			High: MarketSeriesResult{Series: city.HighSeries, Contracts: []Contract{}},
			Low:  MarketSeriesResult{Series: city.LowSeries, Contracts: []Contract{}},
		},
	}
}
