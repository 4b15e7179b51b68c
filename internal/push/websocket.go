package push

import (
	"time"

	"equiscore/internal/logging"

	"golang.org/x/net/websocket"
)

// writeTimeout bounds a single frame write to a stalled client.
const writeTimeout = 10 * time.Second

// WebSocketHandler sends each notification's event name as a text frame.
// Anything the client sends is read and discarded; a read error ends the
// connection.
func WebSocketHandler(hub *Hub) websocket.Handler {
	return func(ws *websocket.Conn) {
		defer ws.Close()

		sub, err := hub.Subscribe()
		if err != nil {
			return
		}
		defer hub.Unsubscribe(sub)

		log := logging.Get(logging.CategoryPush).With("client", sub.ID, "transport", "websocket")
		log.Debug("socket opened")

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			var discard string
			for {
				if err := websocket.Message.Receive(ws, &discard); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				log.Debug("socket closed by client")
				return
			case <-sub.Done():
				return
			case n := <-sub.C:
				_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := websocket.Message.Send(ws, n.Event); err != nil {
					log.Debug("send failed: %v", err)
					return
				}
			}
		}
	}
}
