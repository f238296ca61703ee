// Package api exposes the store over REST plus two push transports: an SSE
// stream and a websocket feed. Every mutation answers with the authoritative
// normalized record, and every successful save is broadcast to subscribers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/cluekeeper/cluekeeper/internal/broadcast"
	"github.com/cluekeeper/cluekeeper/internal/game"
	"github.com/cluekeeper/cluekeeper/internal/store"
)

// maxBodySize caps PUT bodies; photos ride along as data URIs, so the limit
// is generous.
const maxBodySize = 25 << 20

type gamesResponse struct {
	Games []game.Record `json:"games"`
}

type gameResponse struct {
	Game game.Record `json:"game"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SyncEvent is the single event shape pushed over both transports.
type SyncEvent struct {
	Type  string        `json:"type"`
	Games []game.Record `json:"games"`
}

func newSyncEvent(games []game.Record) SyncEvent {
	return SyncEvent{Type: "sync", Games: games}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debug().Err(err).Msg("response write failed")
	}
}

func serveListGames(st *store.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, gamesResponse{Games: st.List()})
	}
}

func serveGetGame(st *store.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		rec, ok := st.Get(p.ByName("code"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Game not found"})
			return
		}
		writeJSON(w, http.StatusOK, gameResponse{Game: rec})
	}
}

func servePutGame(st *store.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := strings.ToUpper(p.ByName("code"))

		var rec game.Record
		body := http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := json.NewDecoder(body).Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request"})
			return
		}

		saved, err := st.Put(code, rec)
		if err != nil {
			log.Error().Err(err).Str("code", code).Msg("failed to save game")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save game"})
			return
		}

		log.Debug().Str("code", code).Int("players", len(saved.Players)).Msg("game saved")
		writeJSON(w, http.StatusOK, gameResponse{Game: saved})
	}
}

// serveQR renders a PNG QR code for the game's join URL, derived from the
// request the same way the scheme is derived behind a reverse proxy.
func serveQR(st *store.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := strings.ToUpper(p.ByName("code"))
		if _, ok := st.Get(code); !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Game not found"})
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		path := strings.TrimSuffix(r.URL.Path, "/qr")
		url := scheme + "://" + r.Host + path

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// Register wires every API route onto mux. The broadcaster must already be
// attached to the store's change hook by the caller.
func Register(mux *httprouter.Router, prefix string, st *store.Store, bc *broadcast.Broadcaster) {
	mux.GET(prefix+"/api/games", serveListGames(st))
	mux.GET(prefix+"/api/games/:code", serveGetGame(st))
	mux.PUT(prefix+"/api/games/:code", servePutGame(st))
	mux.GET(prefix+"/api/stream", serveStream(st, bc))
	mux.GET(prefix+"/api/ws", serveWS(st, bc))
	mux.GET(prefix+"/join/:code/qr", serveQR(st))
}
