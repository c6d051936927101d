package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"roastbot/internal/service"
	"roastbot/internal/wire"
)

const writeTimeout = 10 * time.Second

// stream replays a run's events and follows it live over a WebSocket. The
// optional ?after=N skips events up to and including sequence N. Unknown runs
// are rejected before the upgrade.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "after must be a non-negative integer")
			return
		}
		after = n
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := a.svc.Subscribe(ctx, runID, after)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		a.logger.Error().Err(err).Str("run_id", runID).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	log := a.logger.With().Str("run_id", runID).Logger()
	log.Debug().Uint64("after", after).Msg("stream opened")

	// Clients never send; reading only detects disconnects.
	readCtx := conn.CloseRead(ctx)

	for {
		select {
		case <-readCtx.Done():
			log.Debug().Msg("stream client went away")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if errors.Is(sub.Err(), service.ErrSubscriberLagged) {
					log.Warn().Msg("stream subscriber lagged")
					conn.Close(websocket.StatusTryAgainLater, "lagged; reconnect with ?after")
					return
				}
				conn.Close(websocket.StatusNormalClosure, "run complete")
				return
			}
			data, err := wire.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("encode event")
				conn.Close(websocket.StatusInternalError, "encode failed")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				log.Debug().Err(err).Msg("stream write failed")
				return
			}
		}
	}
}
