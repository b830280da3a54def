package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const eventWriteTimeout = 5 * time.Second

// handleEvents streams edit views over a websocket until either side closes.
// Client messages are ignored.
func handleEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: websocketOrigins(deps.AllowedOrigins),
		})
		if err != nil {
			deps.Log.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		views, unsubscribe := deps.Editor.Subscribe()
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-views:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "editor closed")
					return
				}
				wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
				err := wsjson.Write(wctx, conn, v)
				cancel()
				if err != nil {
					if websocket.CloseStatus(err) == -1 {
						deps.Log.Debug("websocket write failed", "error", err)
					}
					return
				}
			}
		}
	}
}
