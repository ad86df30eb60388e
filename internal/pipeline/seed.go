/**
 * @description
 * Deterministic synthetic data for test mode. Source IDs are stable, so
 * re-running a seeded pipeline upserts instead of duplicating, and the
 * same seed always produces the same posts and bars.
 *
 * @dependencies
 * - internal/models, internal/symbols
 *
 * @notes
 * - Texts are written to be separable by the lexicon scorer, so a full
 *   test-mode run exercises scoring and signals end to end.
 */

package pipeline

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/helvinmg/crowdpulse/internal/models"
	"github.com/helvinmg/crowdpulse/internal/symbols"
)

var bullishTemplates = []string{
	"%s looking like a rocket, accumulate on dips",
	"breakout confirmed on %s, target hit incoming",
	"%s results zabardast, multibagger in the making",
	"strong delivery buying in %s, rally has legs",
}

var bearishTemplates = []string{
	"%s is a trap at these levels, exit now",
	"operator pump in %s, retail will be left holding",
	"%s overvalued, crash waiting to happen",
	"stop loss hit on %s, bleeding red everywhere",
}

var neutralTemplates = []string{
	"%s board meeting scheduled for next week",
	"volumes in %s near the monthly average",
	"%s trading flat ahead of results",
}

// seededRand derives a stable generator from the source name and the
// calendar day, so a re-run within the same day reproduces itself.
func seededRand(source string, day time.Time) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%s", source, day.Format("2006-01-02"))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// seedPosts fabricates a day of discussion for one source. Each source
// covers a rotating slice of the tracked universe so the full run
// touches every symbol without every source repeating the same names.
func seedPosts(source, mode string, now time.Time) []models.SocialPost {
	rng := seededRand(source, now)
	offset := int(rng.Int31n(int32(len(symbols.Nifty50))))

	var posts []models.SocialPost
	for i := 0; i < 12; i++ {
		symbol := symbols.Nifty50[(offset+i)%len(symbols.Nifty50)]
		for j := 0; j < 5; j++ {
			var text string
			switch rng.Intn(3) {
			case 0:
				text = fmt.Sprintf(bullishTemplates[rng.Intn(len(bullishTemplates))], symbol)
			case 1:
				text = fmt.Sprintf(bearishTemplates[rng.Intn(len(bearishTemplates))], symbol)
			default:
				text = fmt.Sprintf(neutralTemplates[rng.Intn(len(neutralTemplates))], symbol)
			}

			postedAt := now.Add(-time.Duration(rng.Intn(24*60)) * time.Minute)
			posts = append(posts, models.SocialPost{
				Source:      source,
				SourceID:    fmt.Sprintf("seed:%s:%d:%d", symbol, i, j),
				Symbol:      symbol,
				RawText:     text,
				CleanedText: symbols.Clean(text),
				Author:      fmt.Sprintf("seed_user_%d", rng.Intn(40)),
				PostedAt:    postedAt,
				DataSource:  mode,
			})
		}
	}
	return posts
}

// seedMarket fabricates a short daily history per tracked symbol with a
// mild random walk and plausible delivery ratios.
func seedMarket(mode string, now time.Time, days int) []models.MarketPoint {
	rng := seededRand("market", now)

	var points []models.MarketPoint
	for _, symbol := range symbols.Nifty50 {
		price := 500 + rng.Float64()*3000
		for d := days; d >= 1; d-- {
			date := now.AddDate(0, 0, -d).Truncate(24 * time.Hour)
			drift := (rng.Float64() - 0.5) * 0.04
			open := price
			closePrice := price * (1 + drift)
			high := maxFloat(open, closePrice) * (1 + rng.Float64()*0.01)
			low := minFloat(open, closePrice) * (1 - rng.Float64()*0.01)
			volume := int64(100000 + rng.Intn(900000))
			// Percent, matching the live market rows.
			deliveryPct := 35 + rng.Float64()*30

			points = append(points, models.MarketPoint{
				Symbol:         symbol,
				Date:           date,
				Open:           open,
				High:           high,
				Low:            low,
				Close:          closePrice,
				Volume:         volume,
				DeliveryVolume: int64(float64(volume) * deliveryPct / 100),
				DeliveryPct:    deliveryPct,
				DataSource:     mode,
			})
			price = closePrice
		}
	}
	return points
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
