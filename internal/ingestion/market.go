/**
 * @description
 * Client for the market data provider.
 * Fetches daily OHLCV bars per symbol; when the provider omits the
 * delivery breakdown, delivery percentage is estimated from the intraday
 * range (wide range relative to close means more speculative churn, so
 * lower delivery).
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - internal/config
 */

package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/models"
)

// MarketClient fetches daily bars with delivery volume for NSE symbols.
type MarketClient struct {
	baseURL    string
	httpClient *http.Client
}

type marketBar struct {
	Date           string  `json:"date"`
	Open           float64 `json:"open"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Close          float64 `json:"close"`
	Volume         int64   `json:"volume"`
	DeliveryVolume int64   `json:"delivery_volume"`
	DeliveryPct    float64 `json:"delivery_pct"`
}

type marketResponse struct {
	Symbol string      `json:"symbol"`
	Bars   []marketBar `json:"bars"`
}

func NewMarketClient(cfg *config.Config) *MarketClient {
	return &MarketClient{
		baseURL: strings.TrimRight(cfg.Sources.MarketDataURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Sources.FetchTimeout,
		},
	}
}

func (c *MarketClient) Name() string { return "market" }

// FetchSymbol returns the daily bars for one symbol over the last `days` days.
func (c *MarketClient) FetchSymbol(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("market data url is not configured")
	}

	q := url.Values{}
	q.Set("symbol", symbol+".NS")
	q.Set("days", fmt.Sprintf("%d", days))

	var result marketResponse
	endpoint := fmt.Sprintf("%s/v1/history?%s", c.baseURL, q.Encode())
	if err := getJSON(ctx, c.httpClient, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("market fetch failed for %s: %w", symbol, err)
	}

	points := make([]models.MarketPoint, 0, len(result.Bars))
	for _, bar := range result.Bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			continue
		}

		deliveryVol := bar.DeliveryVolume
		deliveryPct := bar.DeliveryPct
		if deliveryVol == 0 && bar.Volume > 0 {
			ratio := EstimateDeliveryRatio(bar.High, bar.Low, bar.Close)
			deliveryVol = int64(float64(bar.Volume) * ratio)
			deliveryPct = ratio * 100
		}

		points = append(points, models.MarketPoint{
			Symbol:         symbol,
			Date:           date.UTC(),
			Open:           bar.Open,
			High:           bar.High,
			Low:            bar.Low,
			Close:          bar.Close,
			Volume:         bar.Volume,
			DeliveryVolume: deliveryVol,
			DeliveryPct:    deliveryPct,
		})
	}
	return points, nil
}

// EstimateDeliveryRatio approximates the delivery share of traded volume
// from the intraday range. Nifty 50 stocks typically settle 35-65% of
// volume; a 0% range maps to ~60% delivery and a 5%+ range to ~35%.
func EstimateDeliveryRatio(high, low, close float64) float64 {
	if close <= 0 {
		return 0.50
	}
	rangePct := (high - low) / close
	delivery := 0.60 - rangePct*5.0
	if delivery < 0.35 {
		return 0.35
	}
	if delivery > 0.65 {
		return 0.65
	}
	return delivery
}
