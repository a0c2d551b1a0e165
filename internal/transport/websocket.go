package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
)

// SocketTransport dispatches a socket document: connect, send the body as
// one text frame, return the first frame received. Long-lived
// subscriptions are driven by extensions through post-processing metadata;
// this capability covers the request/response shape of a send.
type SocketTransport struct {
	dialer      *websocket.Dialer
	readTimeout time.Duration
}

// NewSocketTransport creates the WebSocket capability.
func NewSocketTransport(readTimeout time.Duration) *SocketTransport {
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	return &SocketTransport{
		dialer:      websocket.DefaultDialer,
		readTimeout: readTimeout,
	}
}

func (t *SocketTransport) Name() string { return ports.ProtocolSocket }

func (t *SocketTransport) Dispatch(ctx context.Context, req *domain.RequestState) (*domain.ResponseState, error) {
	target, err := BuildURL(req)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for _, h := range req.Headers {
		if h.Enabled {
			header.Set(h.Key, h.Value)
		}
	}

	conn, handshake, err := t.dialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	if req.Body.Kind != domain.BodyNone {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(req.Body.Text)); err != nil {
			return nil, fmt.Errorf("websocket send: %w", err)
		}
	}

	// Abort the read when ctx is cancelled; gorilla reads do not take a
	// context directly.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("websocket read: %w", err)
	}

	rs := &domain.ResponseState{
		StatusCode: handshake.StatusCode,
		StatusText: "Switching Protocols",
		Body:       frame,
	}
	for key, values := range handshake.Header {
		for _, v := range values {
			rs.Headers = append(rs.Headers, domain.Header{Key: key, Value: v, Enabled: true})
		}
	}
	return rs, nil
}

var _ ports.Transport = (*SocketTransport)(nil)
