// Package client gives a view layer an eventually-consistent local mirror of
// the server's game map. Mutations are applied optimistically, persisted
// through the API, and reconciled against the server's authoritative answer;
// on any persistence failure the optimistic change is discarded and the full
// snapshot re-fetched.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/cluekeeper/cluekeeper/internal/game"
)

const (
	defaultRetryDelay   = 3 * time.Second
	defaultPollInterval = 5 * time.Second
)

// Config carries the client's injected dependencies. Nothing in this package
// reaches for ambient globals; the transport and clock arrive here.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080" or the same
	// plus a path prefix.
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// OnChange is invoked (coalesced) after every successful mutation or
	// broadcast-triggered reconciliation. The view layer re-renders here.
	OnChange func()

	// RetryDelay is the fixed pause between realtime reconnect attempts.
	RetryDelay time.Duration

	// PollInterval is the cadence of the polling fallback transport.
	PollInterval time.Duration
}

// Client mirrors the store for one view instance. The mirror is a read
// cache: it is stale until reconciled with a server response, and the
// server's answer always overrides any locally-computed state.
type Client struct {
	baseURL      string
	http         *http.Client
	clock        clockwork.Clock
	retryDelay   time.Duration
	pollInterval time.Duration

	mu     sync.Mutex
	mirror map[string]game.Record
	ready  bool

	group    singleflight.Group
	notifier *notifier
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	retry := cfg.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		http:         httpClient,
		clock:        clock,
		retryDelay:   retry,
		pollInterval: poll,
		mirror:       make(map[string]game.Record),
		notifier:     newNotifier(cfg.OnChange),
	}
}

// Close stops the change-notification dispatcher.
func (c *Client) Close() {
	c.notifier.Close()
}

func (c *Client) gamesURL() string {
	return c.baseURL + "/api/games"
}

func (c *Client) gameURL(code string) string {
	return c.gamesURL() + "/" + url.PathEscape(code)
}

// Refresh fetches the full snapshot and replaces the mirror wholesale.
// On failure a cold mirror is marked ready-but-empty so callers can proceed
// with a degraded view that self-heals on the next successful sync.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gamesURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.http.Do(req)
	if err != nil {
		c.markReadyEmpty()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.markReadyEmpty()
		return fmt.Errorf("snapshot request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Games []game.Record `json:"games"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.markReadyEmpty()
		return err
	}

	c.ApplySnapshot(payload.Games)
	return nil
}

func (c *Client) markReadyEmpty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		c.mirror = make(map[string]game.Record)
		c.ready = true
	}
}

// ApplySnapshot replaces the mirror with the given authoritative snapshot
// and schedules a view refresh. Called by Refresh and by the realtime
// transports.
func (c *Client) ApplySnapshot(games []game.Record) {
	next := make(map[string]game.Record, len(games))
	for _, rec := range games {
		if rec.Code == "" {
			continue
		}
		next[rec.Code] = game.Normalize(rec, rec.Code, c.clock.Now())
	}

	c.mu.Lock()
	c.mirror = next
	c.ready = true
	c.mu.Unlock()

	c.notifier.Schedule()
}

// EnsureLoaded triggers at most one in-flight full fetch per cold mirror;
// concurrent callers share the same request. A load failure leaves an empty
// ready mirror and is reported, but callers may continue degraded.
func (c *Client) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if ready {
		return nil
	}

	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.Refresh(ctx)
	})
	if err != nil {
		log.Warn().Err(err).Msg("continuing with empty game mirror after load failure")
	}
	return err
}

// GetGame serves code from the mirror, falling back to a direct fetch of
// that one record. Absence and transport failure both surface as false,
// never as an error.
func (c *Client) GetGame(ctx context.Context, code string) (game.Record, bool) {
	_ = c.EnsureLoaded(ctx)
	code = strings.ToUpper(code)
	if code == "" {
		return game.Record{}, false
	}

	c.mu.Lock()
	rec, ok := c.mirror[code]
	c.mu.Unlock()
	if ok {
		return game.Normalize(rec, "", c.clock.Now()), true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gameURL(code), nil)
	if err != nil {
		return game.Record{}, false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("code", code).Msg("game fetch failed")
		return game.Record{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return game.Record{}, false
	}

	var payload struct {
		Game game.Record `json:"game"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return game.Record{}, false
	}

	fetched := game.Normalize(payload.Game, code, c.clock.Now())
	c.mu.Lock()
	c.mirror[code] = fetched
	c.mu.Unlock()
	c.notifier.Schedule()

	return fetched, true
}

// ListGames returns every mirrored record, newest first.
func (c *Client) ListGames(ctx context.Context) []game.Record {
	_ = c.EnsureLoaded(ctx)

	c.mu.Lock()
	out := make([]game.Record, 0, len(c.mirror))
	for _, rec := range c.mirror {
		out = append(out, game.Normalize(rec, "", c.clock.Now()))
	}
	c.mu.Unlock()

	game.SortByNewest(out)
	return out
}

// saveGame persists the record and reconciles the mirror with the server's
// authoritative answer, which may have normalized differently.
func (c *Client) saveGame(ctx context.Context, code string, rec game.Record) (game.Record, error) {
	rec.Code = code
	body, err := json.Marshal(rec)
	if err != nil {
		return game.Record{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.gameURL(code), strings.NewReader(string(body)))
	if err != nil {
		return game.Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return game.Record{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return game.Record{}, fmt.Errorf("unable to save game %s: status %d", code, resp.StatusCode)
	}

	var payload struct {
		Game game.Record `json:"game"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return game.Record{}, err
	}

	saved := game.Normalize(payload.Game, code, c.clock.Now())
	c.mu.Lock()
	c.mirror[code] = saved
	c.mu.Unlock()
	return saved, nil
}

// UpdateGame applies transform optimistically, persists the result, and on
// success adopts the server's answer as the new truth. On persistence
// failure the optimistic change is discarded, the full snapshot re-fetched,
// and the error propagated. Returns false when code is not mirrored.
func (c *Client) UpdateGame(ctx context.Context, code string, transform func(*game.Record) error) (game.Record, bool, error) {
	_ = c.EnsureLoaded(ctx)
	code = strings.ToUpper(code)

	c.mu.Lock()
	current, ok := c.mirror[code]
	c.mu.Unlock()
	if !ok {
		return game.Record{}, false, nil
	}

	updated := game.Normalize(current, "", c.clock.Now())
	if err := transform(&updated); err != nil {
		return game.Record{}, true, err
	}
	updated = game.Normalize(updated, code, c.clock.Now())

	c.mu.Lock()
	c.mirror[code] = updated
	c.mu.Unlock()

	saved, err := c.saveGame(ctx, code, updated)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to persist game update")
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			log.Debug().Err(refreshErr).Msg("refresh after failed update also failed")
		}
		return game.Record{}, true, err
	}

	c.notifier.Schedule()
	return saved, true, nil
}

// EnsureGame returns the record for code, creating and persisting a default
// one when absent. The optimistic mirror entry is rolled back if the create
// cannot be persisted.
func (c *Client) EnsureGame(ctx context.Context, code string) (game.Record, error) {
	code = strings.ToUpper(code)
	if code == "" {
		return game.Record{}, fmt.Errorf("game code is required")
	}
	_ = c.EnsureLoaded(ctx)

	c.mu.Lock()
	if rec, ok := c.mirror[code]; ok {
		c.mu.Unlock()
		return game.Normalize(rec, "", c.clock.Now()), nil
	}
	created := game.Normalize(game.Record{Code: code}, code, c.clock.Now())
	c.mirror[code] = created
	c.mu.Unlock()

	saved, err := c.saveGame(ctx, code, created)
	if err != nil {
		c.mu.Lock()
		delete(c.mirror, code)
		c.mu.Unlock()
		return game.Record{}, err
	}

	c.notifier.Schedule()
	return saved, nil
}
