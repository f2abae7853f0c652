// Package commandclient is a correlating client for the executor command
// channel. Many commands may be in flight on one connection; each call waits
// for the response carrying its own command_id.
package commandclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/protocol"
)

// Default per-command waits.
const (
	DefaultScreenshotTimeout = 30 * time.Second
	DefaultCommandTimeout    = 10 * time.Second
	DefaultMaxMessageSize    = 100 << 20
)

// Failure messages synthesized by the client.
const (
	MsgTimedOut         = "Command timed out"
	MsgConnectionClosed = "Connection closed"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("command client closed")

// Options configures a Client.
type Options struct {
	ScreenshotTimeout time.Duration
	CommandTimeout    time.Duration
	MaxMessageSize    int64
	Dialer            *websocket.Dialer
}

type pendingCall struct {
	ch   chan *protocol.ResponseFrame
	conn *websocket.Conn
}

// Client sends command frames and correlates responses by command_id.
// The connection is dialed lazily and redialed after it is lost.
type Client struct {
	url    string
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]*pendingCall
	closed  bool

	writeMu sync.Mutex
	nextID  atomic.Uint64
}

// New creates a client for the executor at url (ws://host:port/ws).
func New(url string, opts Options, logger *zap.Logger) *Client {
	if opts.ScreenshotTimeout <= 0 {
		opts.ScreenshotTimeout = DefaultScreenshotTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		url:     url,
		opts:    opts,
		logger:  logger.With(zap.String("component", "commandclient")),
		pending: make(map[string]*pendingCall),
	}
}

// Connect dials the executor if not already connected.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

func (c *Client) connection(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn = conn
	c.logger.Debug("connected", zap.String("url", c.url))

	go c.readLoop(conn)
	return conn, nil
}

// readLoop delivers responses to waiting callers until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.dropConnection(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		var resp protocol.ResponseFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("discarding undecodable response", zap.Error(err))
			continue
		}

		var id string
		if err := json.Unmarshal(resp.CommandID, &id); err != nil {
			c.logger.Warn("discarding response without string command_id", zap.ByteString("command_id", resp.CommandID))
			continue
		}

		c.mu.Lock()
		call, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Warn("discarding response for unknown command", zap.String("command_id", id))
			continue
		}
		call.ch <- &resp
	}
}

// dropConnection forgets conn and fails the calls still waiting on it.
func (c *Client) dropConnection(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	var orphaned []string
	for id, call := range c.pending {
		if call.conn == conn {
			orphaned = append(orphaned, id)
			delete(c.pending, id)
			call.ch <- protocol.Failed(quoteID(id), MsgConnectionClosed)
		}
	}
	c.mu.Unlock()

	if len(orphaned) > 0 {
		c.logger.Warn("connection lost with commands in flight", zap.Strings("command_ids", orphaned))
	}
}

func quoteID(id string) json.RawMessage {
	data, _ := json.Marshal(id)
	return data
}

func (c *Client) timeoutFor(command protocol.CommandName) time.Duration {
	if command == protocol.CommandScreenshot {
		return c.opts.ScreenshotTimeout
	}
	return c.opts.CommandTimeout
}

// Send issues one command and waits for its response. Command failures,
// including timeouts, are returned as failure frames; the error is reserved
// for connection problems.
func (c *Client) Send(ctx context.Context, command protocol.CommandName, params interface{}) (*protocol.ResponseFrame, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("cmd_%d", c.nextID.Add(1))
	frame := map[string]interface{}{
		"command":    command,
		"command_id": id,
	}
	if params != nil {
		frame["params"] = params
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command, err)
	}

	call := &pendingCall{ch: make(chan *protocol.ResponseFrame, 1), conn: conn}
	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		c.dropConnection(conn)
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	timer := time.NewTimer(c.timeoutFor(command))
	defer timer.Stop()

	select {
	case resp := <-call.ch:
		return resp, nil
	case <-timer.C:
		c.forget(id)
		c.logger.Warn("command timed out", zap.String("command", string(command)), zap.String("command_id", id))
		return protocol.Failed(quoteID(id), MsgTimedOut), nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close closes the connection and fails every waiting call.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.dropConnection(conn)
	return nil
}

func intp(v int) *int { return &v }

// Screenshot captures the screen. Empty format and zero quality use executor defaults.
func (c *Client) Screenshot(ctx context.Context, format string, quality int) (*protocol.ResponseFrame, error) {
	return c.Send(ctx, protocol.CommandScreenshot, protocol.ScreenshotParams{Format: format, Quality: quality})
}

// Click moves to (x, y) and clicks button.
func (c *Client) Click(ctx context.Context, x, y int, button string, double bool) (*protocol.ResponseFrame, error) {
	return c.Send(ctx, protocol.CommandClick, protocol.ClickParams{X: intp(x), Y: intp(y), Button: button, Double: double})
}

// Type types text.
func (c *Client) Type(ctx context.Context, text string) (*protocol.ResponseFrame, error) {
	return c.Send(ctx, protocol.CommandType, protocol.TypeParams{Text: &text})
}

// Keypress taps keys in order.
func (c *Client) Keypress(ctx context.Context, keys ...string) (*protocol.ResponseFrame, error) {
	return c.Send(ctx, protocol.CommandKeypress, protocol.KeypressParams{Keys: keys})
}

// Move moves the pointer to (x, y).
func (c *Client) Move(ctx context.Context, x, y int) (*protocol.ResponseFrame, error) {
	return c.Send(ctx, protocol.CommandMove, protocol.MoveParams{X: intp(x), Y: intp(y)})
}

// Scroll scrolls at (x, y) by the given notches.
func (c *Client) Scroll(ctx context.Context, x, y, scrollX, scrollY int) (*protocol.ResponseFrame, error) {
	return c.Send(ctx, protocol.CommandScroll, protocol.ScrollParams{X: intp(x), Y: intp(y), ScrollX: scrollX, ScrollY: scrollY})
}

// Drag drags from start to end with the left button held.
func (c *Client) Drag(ctx context.Context, startX, startY, endX, endY int) (*protocol.ResponseFrame, error) {
	return c.Send(ctx, protocol.CommandDrag, protocol.DragParams{
		StartX: intp(startX), StartY: intp(startY), EndX: intp(endX), EndY: intp(endY),
	})
}
