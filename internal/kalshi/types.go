package kalshi

// EventsResponse from GET /trade-api/v2/events
type EventsResponse struct {
	Events []Event `json:"events"`
	Cursor string  `json:"cursor"`
}

// Event is an exchange event with its nested markets.
type Event struct {
	EventTicker  string   `json:"event_ticker"`
	SeriesTicker string   `json:"series_ticker"`
	Title        string   `json:"title"`
	Markets      []Market `json:"markets"`
}

// Market is one tradable market as returned by the exchange.
type Market struct {
	Ticker      string `json:"ticker"`
	Title       string `json:"title"`
	YesSubTitle string `json:"yes_sub_title"`
	Subtitle    string `json:"subtitle"`
	Status      string `json:"status"`
	CloseTime   string `json:"close_time"`

	// Prices in cents
	YesBid    int `json:"yes_bid"`
	YesAsk    int `json:"yes_ask"`
	NoBid     int `json:"no_bid"`
	NoAsk     int `json:"no_ask"`
	LastPrice int `json:"last_price"`

	Volume       int64 `json:"volume"`
	OpenInterest int64 `json:"open_interest"`
}

// OrderbookResponse from GET /trade-api/v2/markets/{ticker}/orderbook
type OrderbookResponse struct {
	Orderbook Orderbook `json:"orderbook"`
}

// Orderbook holds both sides as [price_cents, quantity] pairs.
type Orderbook struct {
	Yes [][]int `json:"yes"`
	No  [][]int `json:"no"`
}
