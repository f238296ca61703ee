package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"

	"github.com/cluekeeper/cluekeeper/internal/broadcast"
	"github.com/cluekeeper/cluekeeper/internal/game"
	"github.com/cluekeeper/cluekeeper/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(store.NewMemoryBackend(), clockwork.NewFakeClockAt(time.UnixMilli(1700000000000)))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	bc := broadcast.New()
	st.OnChange(bc.Publish)

	mux := httprouter.New()
	Register(mux, "", st, bc)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

func TestListGames_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/games")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload gamesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Games) != 0 {
		t.Errorf("games = %d, want 0", len(payload.Games))
	}
}

func TestGetGame_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/games/ZZZZZ")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var payload errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Error == "" {
		t.Error("error envelope missing")
	}
}

func TestPutGame_RoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"name":"Manor","players":{"Amy":{}},"phase":"intermission"}`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/games/abcde", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload gameResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}

	// Server-side normalization: code uppercased, bad phase defaulted,
	// missing pin generated.
	if payload.Game.Code != "ABCDE" {
		t.Errorf("code = %q, want ABCDE", payload.Game.Code)
	}
	if payload.Game.Phase != game.PhaseMurders {
		t.Errorf("phase = %q, want murders", payload.Game.Phase)
	}
	if len(payload.Game.Players["Amy"].PIN) != 4 {
		t.Errorf("pin = %q, want generated 4 digits", payload.Game.Players["Amy"].PIN)
	}

	got, err := http.Get(srv.URL + "/api/games/ABCDE")
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Errorf("status after put = %d, want 200", got.StatusCode)
	}
}

func TestPutGame_MalformedBody(t *testing.T) {
	srv, st := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/games/ABCDE", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if _, ok := st.Get("ABCDE"); ok {
		t.Error("malformed put created a record")
	}
}

func TestStream_SyncEvents(t *testing.T) {
	srv, st := newTestServer(t)

	if _, err := st.Put("FIRST", game.Record{}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/api/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() SyncEvent {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("stream read: %v", err)
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event SyncEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("bad event payload: %v", err)
			}
			return event
		}
	}

	// Connecting immediately yields the current snapshot.
	initial := readEvent()
	if initial.Type != "sync" || len(initial.Games) != 1 || initial.Games[0].Code != "FIRST" {
		t.Fatalf("initial event = %+v", initial)
	}

	if _, err := st.Put("SECOND", game.Record{}); err != nil {
		t.Fatal(err)
	}

	next := readEvent()
	if len(next.Games) != 2 {
		t.Fatalf("post-put event carries %d games, want 2", len(next.Games))
	}
}

func TestQR(t *testing.T) {
	srv, st := newTestServer(t)

	resp, err := http.Get(srv.URL + "/join/ABCDE/qr")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status for unknown game = %d, want 404", resp.StatusCode)
	}

	if _, err := st.Put("ABCDE", game.Record{}); err != nil {
		t.Fatal(err)
	}

	resp, err = http.Get(srv.URL + "/join/ABCDE/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type = %q, want image/png", ct)
	}
}
