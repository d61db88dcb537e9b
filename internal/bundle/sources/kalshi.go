package sources

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ksolden/weather-market-gateway/internal/bundle"
	"github.com/ksolden/weather-market-gateway/internal/kalshi"
)

// orderBookBatch bounds concurrent order-book fetches per batch; batches run
// sequentially to stay inside the exchange rate limit.
const orderBookBatch = 5

// Markets fetches a series' open contracts and enriches them with order
// books.
type Markets struct {
	client *kalshi.Client
}

// NewMarkets creates a Markets source over the given exchange client.
func NewMarkets(client *kalshi.Client) *Markets {
	return &Markets{client: client}
}

// TickerDateToken encodes a YYYY-MM-DD date into the exchange's ticker date
// token: two-digit year, uppercase three-letter month, two-digit day
// ("2026-02-15" -> "26FEB15"). The date is anchored at midday UTC to avoid
// rollover ambiguity.
func TickerDateToken(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", err
	}
	t = time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	return strings.ToUpper(t.Format("06Jan02")), nil
}

// Fetch retrieves open markets for the series whose tickers match the
// target date, then fetches each contract's order book in bounded batches.
// A listing failure fails the whole series result; an individual order-book
// failure only yields a placeholder book on that contract.
func (m *Markets) Fetch(ctx context.Context, series, date string) bundle.MarketSeriesResult {
	res := bundle.MarketSeriesResult{
		Series:    series,
		Contracts: []bundle.Contract{},
	}

	token, err := TickerDateToken(date)
	if err != nil {
		msg := err.Error()
		res.Error = &msg
		return res
	}

	events, err := m.client.GetOpenEvents(ctx, series)
	if err != nil {
		msg := err.Error()
		res.Error = &msg
		return res
	}

	for _, event := range events {
		for _, mkt := range event.Markets {
			if !strings.Contains(mkt.Ticker, token) {
				continue
			}
			switch mkt.Status {
			case "active", "open", "":
			default:
				continue
			}
			res.Contracts = append(res.Contracts, bundle.Contract{
				Ticker:       mkt.Ticker,
				Title:        mkt.Title,
				YesSubTitle:  mkt.YesSubTitle,
				Subtitle:     mkt.Subtitle,
				CloseTime:    mkt.CloseTime,
				YesBid:       mkt.YesBid,
				YesAsk:       mkt.YesAsk,
				NoBid:        mkt.NoBid,
				NoAsk:        mkt.NoAsk,
				LastPrice:    mkt.LastPrice,
				Volume:       mkt.Volume,
				OpenInterest: mkt.OpenInterest,
			})
		}
	}

	m.attachOrderBooks(ctx, res.Contracts)

	return res
}

// attachOrderBooks enriches contracts in sequential batches; within a batch
// the fetches run concurrently and each settles independently.
func (m *Markets) attachOrderBooks(ctx context.Context, contracts []bundle.Contract) {
	for start := 0; start < len(contracts); start += orderBookBatch {
		end := start + orderBookBatch
		if end > len(contracts) {
			end = len(contracts)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				contracts[i].OrderBook = m.fetchOrderBook(ctx, contracts[i].Ticker)
			}()
		}
		wg.Wait()
	}
}

// fetchOrderBook never fails: an error yields a placeholder book carrying
// the error instead.
func (m *Markets) fetchOrderBook(ctx context.Context, ticker string) *bundle.OrderBook {
	ob, err := m.client.GetOrderbook(ctx, ticker)
	if err != nil {
		msg := err.Error()
		return &bundle.OrderBook{
			Yes:   []bundle.PriceLevel{},
			No:    []bundle.PriceLevel{},
			Error: &msg,
		}
	}

	return &bundle.OrderBook{
		Yes: toLevels(ob.Yes),
		No:  toLevels(ob.No),
	}
}

func toLevels(pairs [][]int) []bundle.PriceLevel {
	levels := make([]bundle.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		levels = append(levels, bundle.PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return levels
}
