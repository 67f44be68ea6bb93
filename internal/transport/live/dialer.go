package live

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/scrapedeck/console/internal/domain"
)

// WebsocketDialer opens push connections with fasthttp/websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header: http.Header{},
	}
}

// WithHeader adds a header sent on every handshake.
func (d *WebsocketDialer) WithHeader(key, value string) *WebsocketDialer {
	d.header.Set(key, value)
	return d
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %s: %w", domain.ErrTransport, url, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrTransport, url, err)
	}
	return conn, nil
}
