// Package ws implements the client-side WebSocket transport a simulated
// station dials out to its supervision URL with: a send-channel/ping/receive
// goroutine split around gorilla/websocket.Dialer, wrapped in a bounded,
// optionally backed-off reconnect loop.
package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/metrics"
	"github.com/evfleet/station-simulator/internal/station"
)

// Config configures one station's WebSocket client connection.
type Config struct {
	SupervisionURL    string
	StationID         string
	BasicAuthUser     string
	BasicAuthPassword string

	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration

	TLSInsecureSkipVerify bool

	MaxRetries      int // -1 = unlimited
	ExponentialBackoff bool
	MinBackoff      time.Duration
	MaxBackoff      time.Duration
}

// DefaultConfig returns the dial defaults most central systems tolerate.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:     4096,
		WriteBufferSize:    4096,
		HandshakeTimeout:   10 * time.Second,
		PingInterval:       30 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRetries:         -1,
		ExponentialBackoff: true,
		MinBackoff:         time.Second,
		MaxBackoff:         time.Minute,
	}
}

// Client is a station.Transport implementation: it dials the station's
// supervision URL, reconnecting with backoff on any non-intentional close,
// and fans inbound frames and lifecycle notifications out over Events().
type Client struct {
	config Config
	log    *logger.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	open     bool
	sendChan chan []byte
	closed   bool

	events chan station.TransportEvent

	ctx    context.Context
	cancel context.CancelFunc
}

var _ station.Transport = (*Client)(nil)

// New builds a Client for one station's supervision URL.
func New(config Config, log *logger.Logger) *Client {
	return &Client{
		config:   config,
		log:      log.With("stationId", config.StationID),
		sendChan: make(chan []byte, 100),
		events:   make(chan station.TransportEvent, 100),
	}
}

// Start begins the dial-and-reconnect loop in the background.
func (c *Client) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.connectLoop()
}

// IsOpen reports whether a live connection is currently established.
func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Send queues one frame for the write goroutine. Returns an error if the
// connection is not currently open or the send queue is full.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	open := c.open
	c.mu.RUnlock()
	if !open {
		return fmt.Errorf("websocket connection is not open")
	}
	select {
	case c.sendChan <- data:
		return nil
	default:
		return fmt.Errorf("send queue full")
	}
}

// Close stops the reconnect loop and closes any live connection with code.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

// Events returns the channel of Opened/Closed/Message notifications.
func (c *Client) Events() <-chan station.TransportEvent { return c.events }

func (c *Client) connectLoop() {
	attempt := 0
	backoff := c.config.MinBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, closeCode, err := c.dial()
		if err != nil {
			attempt++
			metrics.ReconnectAttemptsTotal.WithLabelValues("failed").Inc()
			c.log.ErrorWithErr(err, "websocket dial failed")
			if c.config.MaxRetries >= 0 && attempt > c.config.MaxRetries {
				return
			}
			if !c.waitBackoff(&backoff) {
				return
			}
			continue
		}

		attempt = 0
		backoff = c.config.MinBackoff
		metrics.ReconnectAttemptsTotal.WithLabelValues("success").Inc()

		c.mu.Lock()
		c.conn = conn
		c.open = true
		c.mu.Unlock()

		c.emit(station.TransportEvent{Kind: station.TransportOpened})

		code := c.runConnection(conn)
		if code == 0 {
			code = closeCode
		}

		c.mu.Lock()
		c.open = false
		c.conn = nil
		// Codes 1000 (normal) and 1005 (no status) mean the close was
		// intentional: treat that the same as an explicit
		// local Close() and stop reconnecting, rather than relying solely
		// on a caller observing the event and calling back in before the
		// next dial attempt races ahead.
		if code == websocket.CloseNormalClosure || code == websocket.CloseNoStatusReceived {
			c.closed = true
		}
		closedIntentionally := c.closed
		c.mu.Unlock()

		c.emit(station.TransportEvent{Kind: station.TransportClosed, CloseCode: code})

		if closedIntentionally {
			return
		}
		if !c.waitBackoff(&backoff) {
			return
		}
	}
}

func (c *Client) waitBackoff(backoff *time.Duration) bool {
	select {
	case <-time.After(*backoff):
	case <-c.ctx.Done():
		return false
	}
	if c.config.ExponentialBackoff {
		*backoff *= 2
		if c.config.MaxBackoff > 0 && *backoff > c.config.MaxBackoff {
			*backoff = c.config.MaxBackoff
		}
	}
	return true
}

func (c *Client) dial() (*websocket.Conn, int, error) {
	u, err := url.Parse(c.config.SupervisionURL)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid supervision url: %w", err)
	}
	u.Path = fmt.Sprintf("%s/%s", trimTrailingSlash(u.Path), c.config.StationID)

	dialer := websocket.Dialer{
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
		HandshakeTimeout: c.config.HandshakeTimeout,
		Subprotocols:     []string{"ocpp1.6"},
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: c.config.TLSInsecureSkipVerify}
	}

	header := http.Header{}
	if c.config.BasicAuthUser != "" {
		req := &http.Request{Header: header}
		req.SetBasicAuth(c.config.BasicAuthUser, c.config.BasicAuthPassword)
		header = req.Header
	}

	conn, resp, err := dialer.Dial(u.String(), header)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		return nil, code, err
	}
	return conn, 0, nil
}

func trimTrailingSlash(p string) string {
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

// runConnection drives one live connection's send/ping/receive goroutines
// until the read loop exits, and returns the close code the peer sent, or
// 1006 (abnormal closure) when the read failed without a close frame.
func (c *Client) runConnection(conn *websocket.Conn) int {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sendRoutine(conn, done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingRoutine(conn, done)
	}()

	closeCode := c.receiveRoutine(conn)
	close(done)
	wg.Wait()
	return closeCode
}

func (c *Client) sendRoutine(conn *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case data := <-c.sendChan:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.ErrorWithErr(err, "websocket write failed")
				return
			}
		}
	}
}

func (c *Client) pingRoutine(conn *websocket.Conn, done <-chan struct{}) {
	if c.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.ErrorWithErr(err, "websocket ping failed")
				return
			}
		}
	}
}

func (c *Client) receiveRoutine(conn *websocket.Conn) int {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return ce.Code
			}
			return websocket.CloseAbnormalClosure
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.emit(station.TransportEvent{Kind: station.TransportMessage, Data: data})
	}
}

func (c *Client) emit(ev station.TransportEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("transport event channel full, dropping event")
	}
}
