package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/cluekeeper/cluekeeper/internal/broadcast"
	"github.com/cluekeeper/cluekeeper/internal/store"
)

// serveStream is the preferred push transport. On connect it immediately
// emits the full current snapshot, then one sync event per store change,
// until the client goes away.
func serveStream(st *store.Store, bc *broadcast.Broadcaster) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		id, ch := bc.Subscribe()
		defer bc.Unsubscribe(id)

		log.Debug().Str("subscriber", id).Str("remote", r.RemoteAddr).Msg("sse stream opened")

		writeEvent := func(event SyncEvent) bool {
			payload, err := json.Marshal(event)
			if err != nil {
				return false
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		if !writeEvent(newSyncEvent(st.List())) {
			return
		}

		for {
			select {
			case snapshot, open := <-ch:
				if !open {
					return
				}
				if !writeEvent(newSyncEvent(snapshot)) {
					return
				}
			case <-r.Context().Done():
				log.Debug().Str("subscriber", id).Msg("sse stream closed")
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS carries the same sync feed over a websocket, for clients that
// prefer a bidirectional transport.
func serveWS(st *store.Store, bc *broadcast.Broadcaster) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		id, ch := bc.Subscribe()
		defer bc.Unsubscribe(id)

		// Reader goroutine exists only to notice the peer closing.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := conn.WriteJSON(newSyncEvent(st.List())); err != nil {
			return
		}

		for {
			select {
			case snapshot, open := <-ch:
				if !open {
					return
				}
				if err := conn.WriteJSON(newSyncEvent(snapshot)); err != nil {
					return
				}
			case <-closed:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}
