package scoring

import (
	"context"
	"sync"
	"time"

	"bist-sentinel/internal/analysis/indicators"
	"bist-sentinel/internal/models"
)

// Regime bucket scores. The regime acts as a macro filter: decisions
// read it against fixed thresholds, so these values are part of the
// decision contract, not tunables.
const (
	RegimeStrongUp   = 80
	RegimeModerateUp = 62
	RegimeWeak       = 35
	RegimeNeutralUp  = 55
	RegimeNeutral    = 50
)

// ClassifyRegime buckets a market-wide index series by the
// relationship of price to its EMA20 and EMA50. Insufficient history
// classifies as neutral.
func ClassifyRegime(bars []models.PriceBar) models.FactorScore {
	if len(bars) < 50 {
		return models.FactorScore{Value: RegimeNeutral, Reasons: []string{"index history too short for regime"}}
	}

	ema20 := indicators.NewEMA(20)
	ema50 := indicators.NewEMA(50)
	v20, err20 := ema20.Calculate(bars)
	v50, err50 := ema50.Calculate(bars)
	if err20 != nil || err50 != nil {
		return models.FactorScore{Value: RegimeNeutral, Reasons: []string{"index history too short for regime"}}
	}

	return classifyBuckets(bars[len(bars)-1].Close, v20[len(v20)-1], v50[len(v50)-1])
}

// RegimeHistory classifies the regime at every bar of an index series,
// reusing one EMA pass. Entries before EMA warm-up are neutral. The
// backtester uses this to replay the regime filter bar by bar.
func RegimeHistory(bars []models.PriceBar) []models.FactorScore {
	out := make([]models.FactorScore, len(bars))
	neutral := models.FactorScore{Value: RegimeNeutral, Reasons: []string{"index history too short for regime"}}

	v20, err20 := indicators.NewEMA(20).Calculate(bars)
	v50, err50 := indicators.NewEMA(50).Calculate(bars)
	for i := range out {
		if i < 49 || err20 != nil || err50 != nil {
			out[i] = neutral
			continue
		}
		out[i] = classifyBuckets(bars[i].Close, v20[i], v50[i])
	}
	return out
}

// classifyBuckets maps the price/EMA20/EMA50 relationship to one of
// the fixed regime buckets.
func classifyBuckets(price, e20, e50 float64) models.FactorScore {
	switch {
	case price > e20 && e20 > e50:
		return models.FactorScore{Value: RegimeStrongUp, Reasons: []string{"index in strong uptrend (price>EMA20>EMA50)"}}
	case e20 > e50:
		return models.FactorScore{Value: RegimeModerateUp, Reasons: []string{"index in moderate uptrend (EMA20>EMA50)"}}
	case price < e20 && e20 < e50:
		return models.FactorScore{Value: RegimeWeak, Reasons: []string{"index in downtrend (price<EMA20<EMA50)"}}
	case price > e50:
		return models.FactorScore{Value: RegimeNeutralUp, Reasons: []string{"index mixed, price holding above EMA50"}}
	default:
		return models.FactorScore{Value: RegimeNeutral, Reasons: []string{"index mixed, no clear trend"}}
	}
}

// RegimeReferenceFunc fetches the bar series of the market-wide proxy
// index (XU100 for BIST names).
type RegimeReferenceFunc func(ctx context.Context) ([]models.PriceBar, error)

// CachedRegime serves the regime classification from a cache with a
// time-to-live equal to the analysis refresh interval, so a watchlist
// sweep triggers at most one index fetch.
type CachedRegime struct {
	mu        sync.Mutex
	fetch     RegimeReferenceFunc
	ttl       time.Duration
	cached    models.FactorScore
	fetchedAt time.Time
	now       func() time.Time
}

// NewCachedRegime creates a caching regime scorer around the given
// index fetch.
func NewCachedRegime(fetch RegimeReferenceFunc, ttl time.Duration) *CachedRegime {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &CachedRegime{fetch: fetch, ttl: ttl, now: time.Now}
}

// SetTTL adjusts the cache lifetime, e.g. when the refresh interval
// switches between market-open and market-closed cadence.
func (c *CachedRegime) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl > 0 {
		c.ttl = ttl
	}
}

// Score returns the cached classification while it is fresh, otherwise
// refetches the index series and reclassifies. A failed fetch keeps
// the previous classification (neutral when there is none) and still
// stamps the cache, so one broken cycle costs one fetch, not one per
// symbol.
func (c *CachedRegime) Score(ctx context.Context) models.FactorScore {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl {
		return c.cached
	}

	bars, err := c.fetch(ctx)
	if err != nil {
		if c.fetchedAt.IsZero() {
			c.cached = models.FactorScore{Value: RegimeNeutral, Reasons: []string{"market regime unavailable"}}
		}
		c.fetchedAt = now
		return c.cached
	}

	c.cached = ClassifyRegime(bars)
	c.fetchedAt = now
	return c.cached
}
