package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onkernel/imgport/lib/engine"
	"github.com/onkernel/imgport/lib/images"
	"github.com/onkernel/imgport/lib/logger"
	"github.com/onkernel/imgport/lib/oapi"
)

const pullWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// PullImage pulls an image and streams the engine's progress over a
// websocket. The last frame has status "done" or "error".
func (s *ApiService) PullImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	ref, err := images.ParseAndValidate(r.URL.Query().Get("imageName"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// A hijacked connection does not cancel the request context, so watch
	// for the client closing the socket instead.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(ev oapi.PullEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(pullWriteTimeout))
		return conn.WriteJSON(ev)
	}

	var writeErr error
	err = s.Engine.PullWithProgress(ctx, ref, func(p engine.Progress) {
		if writeErr != nil {
			return
		}
		if writeErr = send(oapi.PullEvent{Status: p.Status, ID: p.ID, Current: p.Current, Total: p.Total}); writeErr != nil {
			cancel()
		}
	})
	if writeErr != nil {
		log.InfoContext(ctx, "pull progress client went away", "image", ref.Raw, "error", writeErr)
		return
	}

	final := oapi.PullEvent{Status: "done"}
	if err != nil {
		log.WarnContext(ctx, "pull failed", "image", ref.Raw, "error", err)
		final = oapi.PullEvent{Status: "error", Error: err.Error()}
	}
	if err := send(final); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(pullWriteTimeout))
}
