package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	done := make(chan struct{})
	backlog, updates, unsubscribe := s.agent.Conversation().Subscribe()
	defer unsubscribe()

	// Send the transcript up to the subscription point; the updates channel
	// carries everything after it, so nothing is delivered twice.
	for _, msg := range backlog {
		if err := ws.WriteJSON(msg); err != nil {
			slog.Error("Failed initial transcript sync", "error", err)
			return
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer goroutine: pushes appended messages to the client.
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case msg := <-updates:
				if err := ws.WriteJSON(msg); err != nil {
					slog.Error("Failed to write message", "error", err)
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop: receives user messages and feeds the agent. Submissions
	// run in the background so the socket can still deliver cancel requests
	// and transcript updates while a turn is in flight.
	ctx := context.Background()
	for {
		var msg struct {
			Content string `json:"content"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			slog.Error("WebSocket read error", "error", err)
			break
		}

		if msg.Content != "" {
			go func(content string) {
				if _, err := s.agent.Submit(ctx, content); err != nil {
					slog.Error("Submit failed", "error", err)
				}
			}(msg.Content)
		}
	}

	close(done)
	wg.Wait()
}
