package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"bist-sentinel/internal/models"
)

func f64(v float64) *float64 { return &v }

// makeBars builds a daily series from closes, one bar per day ending
// today, with a small symmetric range around each close.
func makeBars(closes []float64) []models.PriceBar {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Date:   time.Now().AddDate(0, 0, -len(closes)+i+1),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100000,
		}
	}
	return bars
}

func linearCloses(start, step float64, n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return closes
}

func TestTechnicalScoreRequiresHistory(t *testing.T) {
	scorer := NewTechnicalScorer()

	bars := makeBars(linearCloses(100, 0.5, MinTechnicalBars-1))
	_, err := scorer.Score(context.Background(), "FROTO", bars)
	if err == nil {
		t.Fatal("Expected error for short history, got nil")
	}

	bars = makeBars(linearCloses(100, 0.5, MinTechnicalBars))
	res, err := scorer.Score(context.Background(), "FROTO", bars)
	if err != nil {
		t.Fatalf("Expected success at %d bars, got error: %v", MinTechnicalBars, err)
	}
	if res.Score.Value < 0 || res.Score.Value > 100 {
		t.Errorf("Score out of bounds: %d", res.Score.Value)
	}
}

func TestTechnicalScoreUptrend(t *testing.T) {
	scorer := NewTechnicalScorer()

	// Steady uptrend: full EMA alignment, price above EMA50.
	bars := makeBars(linearCloses(100, 0.5, 260))
	res, err := scorer.Score(context.Background(), "THYAO", bars)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if !(res.EMA20 > res.EMA50 && res.EMA50 > res.EMA200) {
		t.Errorf("Expected aligned EMA stack, got EMA20=%.2f EMA50=%.2f EMA200=%.2f",
			res.EMA20, res.EMA50, res.EMA200)
	}
	if res.Score.Value < 45 {
		t.Errorf("Expected uptrend score >= 45, got %d", res.Score.Value)
	}
	if len(res.Score.Reasons) == 0 {
		t.Error("Expected reasons for uptrend score")
	}
	if res.LongStop >= res.Close {
		t.Errorf("LongStop %.2f not below close %.2f", res.LongStop, res.Close)
	}
	if res.ShortStop <= res.Close {
		t.Errorf("ShortStop %.2f not above close %.2f", res.ShortStop, res.Close)
	}
}

func TestTechnicalScoreDowntrendLow(t *testing.T) {
	scorer := NewTechnicalScorer()

	// Persistent downtrend: no trend bonuses should fire.
	bars := makeBars(linearCloses(400, -0.5, 260))
	res, err := scorer.Score(context.Background(), "EREGL", bars)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if res.Score.Value > 30 {
		t.Errorf("Expected downtrend score <= 30, got %d", res.Score.Value)
	}
}

func TestStopCandidatesPreferTighterEMA(t *testing.T) {
	// EMA20 between price and the ATR band: EMA20 wins on the long side.
	longStop, shortStop := stopCandidates(100, 98, 5)
	if longStop != 98 {
		t.Errorf("Expected long stop at EMA20 98, got %.2f", longStop)
	}
	// Short side: EMA20 below price is no candidate, ATR band holds.
	if shortStop != 106 {
		t.Errorf("Expected short stop at ATR band 106, got %.2f", shortStop)
	}

	// EMA20 below the ATR band: band is tighter, band wins.
	longStop, _ = stopCandidates(100, 90, 5)
	if longStop != 94 {
		t.Errorf("Expected long stop at ATR band 94, got %.2f", longStop)
	}

	// Degenerate ATR: fall back to the fixed percentage.
	longStop, shortStop = stopCandidates(100, 100, 0)
	if longStop != 98 {
		t.Errorf("Expected fallback long stop 98, got %.2f", longStop)
	}
	if shortStop != 102 {
		t.Errorf("Expected fallback short stop 102, got %.2f", shortStop)
	}
}

func TestFundamentalScoreNilSnapshot(t *testing.T) {
	scorer := NewFundamentalScorer()

	score := scorer.Score(nil)
	if score.Value != NeutralScore {
		t.Errorf("Expected neutral %d for nil snapshot, got %d", NeutralScore, score.Value)
	}
	if len(score.Reasons) != 0 {
		t.Errorf("Expected no reasons for nil snapshot, got %v", score.Reasons)
	}
}

func TestFundamentalScoreBands(t *testing.T) {
	scorer := NewFundamentalScorer()

	// All ratios in their good bands: 8+6+8+6+6+6+6 = 46 over neutral.
	strong := &models.FundamentalsSnapshot{
		PERatio:        f64(8),
		PBRatio:        f64(1.2),
		ROE:            f64(25),
		DebtToEquity:   f64(0.3),
		RevenueGrowth:  f64(20),
		EarningsGrowth: f64(18),
		ProfitMargin:   f64(22),
	}
	score := scorer.Score(strong)
	if score.Value != 96 {
		t.Errorf("Expected strong fundamentals score 96, got %d", score.Value)
	}
	if len(score.Reasons) != 7 {
		t.Errorf("Expected 7 reasons, got %d: %v", len(score.Reasons), score.Reasons)
	}

	// All ratios in their bad bands: -8-6-8-8-6-6-4 = 46 under neutral.
	weak := &models.FundamentalsSnapshot{
		PERatio:        f64(45),
		PBRatio:        f64(8),
		ROE:            f64(-5),
		DebtToEquity:   f64(3),
		RevenueGrowth:  f64(-10),
		EarningsGrowth: f64(-15),
		ProfitMargin:   f64(1),
	}
	score = scorer.Score(weak)
	if score.Value != 4 {
		t.Errorf("Expected weak fundamentals score 4, got %d", score.Value)
	}

	// Middle-band ratios contribute nothing.
	flat := &models.FundamentalsSnapshot{
		PERatio:      f64(18),
		PBRatio:      f64(3),
		ROE:          f64(12),
		DebtToEquity: f64(1),
	}
	score = scorer.Score(flat)
	if score.Value != NeutralScore {
		t.Errorf("Expected neutral score for mid-band ratios, got %d", score.Value)
	}

	// Sparse snapshot: only present ratios count.
	sparse := &models.FundamentalsSnapshot{ROE: f64(30)}
	score = scorer.Score(sparse)
	if score.Value != NeutralScore+8 {
		t.Errorf("Expected %d for lone strong ROE, got %d", NeutralScore+8, score.Value)
	}
}

func TestNewsScoreEmptyWindow(t *testing.T) {
	scorer := NewNewsScorer(72 * time.Hour)
	now := time.Now()

	score := scorer.Score(nil, now)
	if score.Value != NeutralScore {
		t.Errorf("Expected neutral %d with no headlines, got %d", NeutralScore, score.Value)
	}
	if len(score.Reasons) != 1 || score.Reasons[0] != "no recent news signal (last 72h)" {
		t.Errorf("Unexpected reasons: %v", score.Reasons)
	}

	// Headlines outside the window are invisible.
	old := []models.Headline{
		{Title: "rekor kâr açıklandı", PublishedAt: now.Add(-100 * time.Hour)},
		{Title: "dava süreci başladı", PublishedAt: now.Add(time.Hour)},
	}
	score = scorer.Score(old, now)
	if score.Value != NeutralScore {
		t.Errorf("Expected neutral for out-of-window headlines, got %d", score.Value)
	}
}

func TestNewsScoreKeywordHits(t *testing.T) {
	scorer := NewNewsScorer(72 * time.Hour)
	now := time.Now()

	positive := []models.Headline{
		{Title: "Şirket rekor temettü açıkladı", PublishedAt: now.Add(-2 * time.Hour)},
		{Title: "Yeni ihale kazanıldı", PublishedAt: now.Add(-20 * time.Hour)},
	}
	score := scorer.Score(positive, now)
	// "rekor" + "temettü" + "ihale" = 3 hits, +24.
	if score.Value != NeutralScore+24 {
		t.Errorf("Expected %d, got %d (%v)", NeutralScore+24, score.Value, score.Reasons)
	}

	negative := []models.Headline{
		{Title: "Dava ve ceza riski: soruşturma genişledi", PublishedAt: now.Add(-5 * time.Hour)},
		{Title: "Üretimde düşüş, zarar beklentisi", PublishedAt: now.Add(-30 * time.Hour)},
		{Title: "Grev kararı alındı", PublishedAt: now.Add(-50 * time.Hour)},
	}
	score = scorer.Score(negative, now)
	// 6 negative hits would be -48, capped at -30.
	if score.Value != NeutralScore-newsMaxSwing {
		t.Errorf("Expected capped %d, got %d (%v)", NeutralScore-newsMaxSwing, score.Value, score.Reasons)
	}

	quiet := []models.Headline{
		{Title: "Olağan genel kurul toplantısı yapıldı", PublishedAt: now.Add(-10 * time.Hour)},
	}
	score = scorer.Score(quiet, now)
	if score.Value != NeutralScore {
		t.Errorf("Expected neutral for keyword-free headlines, got %d", score.Value)
	}
	if len(score.Reasons) != 1 || score.Reasons[0] != "1 headlines, no keyword signal" {
		t.Errorf("Unexpected reasons: %v", score.Reasons)
	}
}

func TestClassifyRegimeBuckets(t *testing.T) {
	// Short history classifies neutral.
	score := ClassifyRegime(makeBars(linearCloses(100, 1, 30)))
	if score.Value != RegimeNeutral {
		t.Errorf("Expected neutral %d for short history, got %d", RegimeNeutral, score.Value)
	}

	// Steady uptrend: price > EMA20 > EMA50.
	score = ClassifyRegime(makeBars(linearCloses(100, 1, 100)))
	if score.Value != RegimeStrongUp {
		t.Errorf("Expected strong up %d, got %d (%v)", RegimeStrongUp, score.Value, score.Reasons)
	}

	// Steady downtrend: price < EMA20 < EMA50.
	score = ClassifyRegime(makeBars(linearCloses(200, -1, 100)))
	if score.Value != RegimeWeak {
		t.Errorf("Expected weak %d, got %d (%v)", RegimeWeak, score.Value, score.Reasons)
	}

	// Uptrend with a sharp last-bar dip under EMA20: still EMA20 > EMA50.
	closes := linearCloses(100, 1, 99)
	closes = append(closes, 180)
	score = ClassifyRegime(makeBars(closes))
	if score.Value != RegimeModerateUp {
		t.Errorf("Expected moderate up %d, got %d (%v)", RegimeModerateUp, score.Value, score.Reasons)
	}

	// Downtrend with a last-bar rally above EMA50: mixed but holding.
	closes = linearCloses(200, -0.5, 99)
	closes = append(closes, 190)
	score = ClassifyRegime(makeBars(closes))
	if score.Value != RegimeNeutralUp {
		t.Errorf("Expected neutral up %d, got %d (%v)", RegimeNeutralUp, score.Value, score.Reasons)
	}

	// Downtrend with a mild rally between the EMAs: no clear trend.
	closes = linearCloses(200, -0.5, 99)
	closes = append(closes, 158)
	score = ClassifyRegime(makeBars(closes))
	if score.Value != RegimeNeutral {
		t.Errorf("Expected neutral %d, got %d (%v)", RegimeNeutral, score.Value, score.Reasons)
	}
}

func TestCachedRegimeTTL(t *testing.T) {
	var fetches int
	bars := makeBars(linearCloses(100, 1, 100))

	cache := NewCachedRegime(func(ctx context.Context) ([]models.PriceBar, error) {
		fetches++
		return bars, nil
	}, time.Minute)

	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	ctx := context.Background()

	first := cache.Score(ctx)
	if first.Value != RegimeStrongUp {
		t.Fatalf("Expected strong up, got %d", first.Value)
	}
	if fetches != 1 {
		t.Fatalf("Expected 1 fetch, got %d", fetches)
	}

	// Within TTL: served from cache.
	clock = clock.Add(30 * time.Second)
	cache.Score(ctx)
	if fetches != 1 {
		t.Errorf("Expected cached result within TTL, got %d fetches", fetches)
	}

	// Past TTL: refetch.
	clock = clock.Add(45 * time.Second)
	cache.Score(ctx)
	if fetches != 2 {
		t.Errorf("Expected refetch after TTL, got %d fetches", fetches)
	}
}

func TestCachedRegimeKeepsStaleOnError(t *testing.T) {
	var fetches int
	bars := makeBars(linearCloses(100, 1, 100))

	cache := NewCachedRegime(func(ctx context.Context) ([]models.PriceBar, error) {
		fetches++
		if fetches > 1 {
			return nil, errors.New("index feed down")
		}
		return bars, nil
	}, time.Minute)

	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	ctx := context.Background()

	first := cache.Score(ctx)
	if first.Value != RegimeStrongUp {
		t.Fatalf("Expected strong up, got %d", first.Value)
	}

	// Expire the cache, then fail the fetch: classification survives.
	clock = clock.Add(2 * time.Minute)
	second := cache.Score(ctx)
	if second.Value != RegimeStrongUp {
		t.Errorf("Expected stale classification on fetch error, got %d", second.Value)
	}
	if fetches != 2 {
		t.Fatalf("Expected 2 fetches, got %d", fetches)
	}

	// The failed fetch still stamped the cache: no immediate retry.
	clock = clock.Add(10 * time.Second)
	cache.Score(ctx)
	if fetches != 2 {
		t.Errorf("Expected no refetch within TTL after failure, got %d fetches", fetches)
	}
}

func TestCachedRegimeNeverFetchedError(t *testing.T) {
	cache := NewCachedRegime(func(ctx context.Context) ([]models.PriceBar, error) {
		return nil, errors.New("index feed down")
	}, time.Minute)

	score := cache.Score(context.Background())
	if score.Value != RegimeNeutral {
		t.Errorf("Expected neutral when regime was never available, got %d", score.Value)
	}
	if len(score.Reasons) != 1 || score.Reasons[0] != "market regime unavailable" {
		t.Errorf("Unexpected reasons: %v", score.Reasons)
	}
}
