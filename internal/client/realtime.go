package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cluekeeper/cluekeeper/internal/game"
)

type syncEvent struct {
	Type  string        `json:"type"`
	Games []game.Record `json:"games"`
}

// Watch consumes the server's SSE stream until ctx is cancelled, replacing
// the mirror on every sync event. On stream failure the connection is torn
// down and reattempted after a fixed delay; retries never overlap.
func (c *Client) Watch(ctx context.Context) {
	for {
		if err := c.consumeStream(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("realtime stream failed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.retryDelay):
		}
	}
}

func (c *Client) consumeStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event syncEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			log.Debug().Err(err).Msg("skipping malformed stream event")
			continue
		}
		if event.Type == "sync" {
			c.ApplySnapshot(event.Games)
		}
	}
}

// WatchWebSocket is the same sync feed over the websocket endpoint, with
// the same fixed-delay reconnect policy.
func (c *Client) WatchWebSocket(ctx context.Context) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/ws"

	for {
		if err := c.consumeWebSocket(ctx, wsURL); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("websocket feed failed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.retryDelay):
		}
	}
}

func (c *Client) consumeWebSocket(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var event syncEvent
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		if event.Type == "sync" {
			c.ApplySnapshot(event.Games)
		}
	}
}

// WatchFile observes the store's data file for sibling-process changes, the
// degraded transport for same-host topologies with no network round trip.
// The event carries no payload; a change just triggers a pull.
func (c *Client) WatchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: saves go through a temp-file rename, which
	// would silently detach a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	base := filepath.Base(path)

	for {
		select {
		case event, open := <-watcher.Events:
			if !open {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.Refresh(ctx); err != nil {
				log.Debug().Err(err).Msg("refresh after file change failed")
			}
		case err, open := <-watcher.Errors:
			if !open {
				return nil
			}
			log.Warn().Err(err).Msg("file watcher error")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Poll is the last-resort transport: a fixed-interval full-snapshot fetch.
func (c *Client) Poll(ctx context.Context) {
	ticker := c.clock.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := c.Refresh(ctx); err != nil {
				log.Debug().Err(err).Msg("poll refresh failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
