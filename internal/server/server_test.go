package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bist-sentinel/internal/engine"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/store"
	"bist-sentinel/internal/stream"
)

type fakeState struct {
	snap engine.Snapshot
}

func (f *fakeState) Snapshot() engine.Snapshot { return f.snap }

type fakeRefresher struct {
	mu    sync.Mutex
	kicks int
}

func (f *fakeRefresher) RequestRefresh() {
	f.mu.Lock()
	f.kicks++
	f.mu.Unlock()
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

func newTestServer(key string) (*Server, *fakeRefresher) {
	state := &fakeState{snap: engine.Snapshot{
		GeneratedAt: time.Now(),
		Watchlist:   []string{"FROTO", "TUPRS"},
		Prices:      map[string]float64{"FROTO": 128.5},
		Cycle:       engine.CycleInfo{Count: 3},
	}}
	refresher := &fakeRefresher{}
	srv := New(Config{
		Listen:     "127.0.0.1:0",
		RefreshKey: key,
		Version:    "test",
		Log:        zerolog.Nop(),
		State:      state,
		Refresher:  refresher,
	})
	return srv, refresher
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestStateEndpoint(t *testing.T) {
	srv, _ := newTestServer("")

	rec := doRequest(srv, http.MethodGet, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("Failed to decode state payload: %v", err)
	}
	if len(snap.Watchlist) != 2 {
		t.Errorf("Expected 2 watchlist symbols, got %d", len(snap.Watchlist))
	}
	if snap.Prices["FROTO"] != 128.5 {
		t.Errorf("Expected FROTO price 128.5, got %.2f", snap.Prices["FROTO"])
	}
	if snap.Cycle.Count != 3 {
		t.Errorf("Expected cycle count 3, got %d", snap.Cycle.Count)
	}
}

func TestRefreshRequiresKey(t *testing.T) {
	srv, refresher := newTestServer("sekret")

	rec := doRequest(srv, http.MethodGet, "/api/refresh")
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without key, got %d", rec.Code)
	}
	rec = doRequest(srv, http.MethodGet, "/api/refresh?key=wrong")
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong key, got %d", rec.Code)
	}
	if refresher.count() != 0 {
		t.Fatalf("Expected no refresh kicks on rejected requests, got %d", refresher.count())
	}

	rec = doRequest(srv, http.MethodGet, "/api/refresh?key=sekret")
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 with good key, got %d", rec.Code)
	}
	rec = doRequest(srv, http.MethodPost, "/api/refresh?key=sekret")
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 on POST with good key, got %d", rec.Code)
	}
	if refresher.count() != 2 {
		t.Errorf("Expected 2 refresh kicks, got %d", refresher.count())
	}
}

func TestRefreshOpenWithoutConfiguredKey(t *testing.T) {
	srv, refresher := newTestServer("")

	rec := doRequest(srv, http.MethodPost, "/api/refresh")
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 when no key is configured, got %d", rec.Code)
	}
	if refresher.count() != 1 {
		t.Errorf("Expected 1 refresh kick, got %d", refresher.count())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer("")

	rec := doRequest(srv, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode health payload: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("Expected version test, got %v", body["version"])
	}
	if _, ok := body["uptime"]; !ok {
		t.Error("Expected uptime in health payload")
	}
	if g, ok := body["goroutines"].(float64); !ok || g <= 0 {
		t.Errorf("Expected positive goroutine count, got %v", body["goroutines"])
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv, _ := newTestServer("")

	rec := doRequest(srv, http.MethodGet, "/api/unknown")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

type fakeStore struct {
	store.DataStore

	decisions []models.Decision
	events    []models.PositionEvent
	backtests []models.BacktestResult
	stats     *store.TradeStats
	err       error

	lastSymbol string
	lastLimit  int
	lastFrom   time.Time
	lastTo     time.Time
}

func (f *fakeStore) RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.Decision, error) {
	f.lastSymbol, f.lastLimit = symbol, limit
	return f.decisions, f.err
}

func (f *fakeStore) RecentEvents(ctx context.Context, limit int) ([]models.PositionEvent, error) {
	f.lastLimit = limit
	return f.events, f.err
}

func (f *fakeStore) RecentBacktests(ctx context.Context, symbol string, limit int) ([]models.BacktestResult, error) {
	f.lastSymbol, f.lastLimit = symbol, limit
	return f.backtests, f.err
}

func (f *fakeStore) TradeStats(ctx context.Context, from, to time.Time) (*store.TradeStats, error) {
	f.lastFrom, f.lastTo = from, to
	return f.stats, f.err
}

func newHistoryServer(db *fakeStore, events EventSource) *Server {
	return New(Config{
		Listen:    "127.0.0.1:0",
		Version:   "test",
		Log:       zerolog.Nop(),
		State:     &fakeState{},
		Refresher: &fakeRefresher{},
		Store:     db,
		Events:    events,
	})
}

func TestDecisionsEndpoint(t *testing.T) {
	db := &fakeStore{decisions: []models.Decision{
		{ID: "d2", Symbol: "FROTO", Action: models.ActionBuy, Score: 78},
		{ID: "d1", Symbol: "FROTO", Action: models.ActionHold, Score: 55},
	}}
	srv := newHistoryServer(db, nil)

	rec := doRequest(srv, http.MethodGet, "/api/decisions?symbol=froto&limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var decisions []models.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &decisions); err != nil {
		t.Fatalf("Failed to decode decisions payload: %v", err)
	}
	if len(decisions) != 2 || decisions[0].ID != "d2" {
		t.Errorf("Expected 2 decisions newest first, got %+v", decisions)
	}
	if db.lastSymbol != "FROTO" {
		t.Errorf("Expected symbol uppercased to FROTO, got %q", db.lastSymbol)
	}
	if db.lastLimit != 5 {
		t.Errorf("Expected limit 5, got %d", db.lastLimit)
	}
}

func TestDecisionsEndpointDefaultsAndEmpty(t *testing.T) {
	db := &fakeStore{}
	srv := newHistoryServer(db, nil)

	rec := doRequest(srv, http.MethodGet, "/api/decisions?limit=junk")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if db.lastLimit != 50 {
		t.Errorf("Expected default limit 50 on a bad parameter, got %d", db.lastLimit)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", body)
	}
}

func TestEventsEndpoint(t *testing.T) {
	db := &fakeStore{events: []models.PositionEvent{
		{ID: "e1", Symbol: "TUPRS", Type: models.EventOpen, Price: 182.3},
	}}
	srv := newHistoryServer(db, nil)

	rec := doRequest(srv, http.MethodGet, "/api/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var events []models.PositionEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("Failed to decode events payload: %v", err)
	}
	if len(events) != 1 || events[0].Symbol != "TUPRS" {
		t.Errorf("Expected 1 TUPRS event, got %+v", events)
	}
}

func TestLiveEventsEndpoint(t *testing.T) {
	ring := stream.NewRing(8)
	ring.OnEvent(stream.Event{Kind: stream.KindDecision, Symbol: "FROTO", Price: 128.5})
	ring.OnEvent(stream.Event{Kind: stream.KindAlarm, Symbol: "TUPRS", Price: 182.3})
	srv := newHistoryServer(&fakeStore{}, ring)

	rec := doRequest(srv, http.MethodGet, "/api/events/live")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var events []stream.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("Failed to decode live events payload: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 live events, got %d", len(events))
	}
	if events[0].Kind != stream.KindAlarm || events[0].Symbol != "TUPRS" {
		t.Errorf("Expected newest event first, got %+v", events[0])
	}
}

func TestLiveEventsEndpointWithoutRing(t *testing.T) {
	srv := newHistoryServer(&fakeStore{}, nil)

	rec := doRequest(srv, http.MethodGet, "/api/events/live")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", body)
	}
}

func TestBacktestsEndpoint(t *testing.T) {
	db := &fakeStore{backtests: []models.BacktestResult{
		{Symbol: "THYAO", Preset: "Balanced", TotalTrades: 9},
	}}
	srv := newHistoryServer(db, nil)

	rec := doRequest(srv, http.MethodGet, "/api/backtests?symbol=thyao")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var results []models.BacktestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("Failed to decode backtests payload: %v", err)
	}
	if len(results) != 1 || results[0].Preset != "Balanced" {
		t.Errorf("Expected 1 Balanced run, got %+v", results)
	}
	if db.lastSymbol != "THYAO" || db.lastLimit != 20 {
		t.Errorf("Expected THYAO with default limit 20, got %q/%d", db.lastSymbol, db.lastLimit)
	}
}

func TestStatsEndpoint(t *testing.T) {
	db := &fakeStore{stats: &store.TradeStats{
		Total:   4,
		Wins:    3,
		Losses:  1,
		WinRate: 75,
	}}
	srv := newHistoryServer(db, nil)

	rec := doRequest(srv, http.MethodGet, "/api/stats?days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stats store.TradeStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats payload: %v", err)
	}
	if stats.Total != 4 || stats.WinRate != 75 {
		t.Errorf("Expected 4 trades at 75%% win rate, got %+v", stats)
	}

	window := db.lastTo.Sub(db.lastFrom)
	if window < 6*24*time.Hour || window > 8*24*time.Hour {
		t.Errorf("Expected a 7-day stats window, got %s", window)
	}
}

func TestHistoryEndpointsStoreError(t *testing.T) {
	db := &fakeStore{err: errors.New("disk gone")}
	srv := newHistoryServer(db, nil)

	for _, target := range []string{"/api/decisions", "/api/events", "/api/backtests", "/api/stats"} {
		rec := doRequest(srv, http.MethodGet, target)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500 from %s, got %d", target, rec.Code)
		}
	}
}
