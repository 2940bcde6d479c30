package conn

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// readLimit caps a single inbound frame.
const readLimit = 1 << 20

// Conn abstracts the WebSocket connection so the Manager can be tested
// without a real server. *websocket.Conn satisfies this interface.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens a connection to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer returns the production DialFunc. A non-empty token is also
// sent as a bearer header for servers that authenticate the upgrade request.
func WebsocketDialer(token string) DialFunc {
	return func(ctx context.Context, url string) (Conn, error) {
		opts := &websocket.DialOptions{}
		if token != "" {
			opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
		}
		c, _, err := websocket.Dial(ctx, url, opts) //nolint:bodyclose // websocket.Dial closes the response body internally
		if err != nil {
			return nil, err
		}
		c.SetReadLimit(readLimit)
		return c, nil
	}
}
