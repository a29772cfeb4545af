package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"devcrew/config"
	"devcrew/internal/logging"
	"devcrew/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	requestTimeout = 30 * time.Second
)

// ErrClosed is returned when sending on a closed connection
var ErrClosed = errors.New("bridge connection closed")

// RequestHandler processes an incoming request from the viewer and returns a response
type RequestHandler func(env *Envelope) (*Envelope, error)

// Options configures a Client
type Options struct {
	URL          string
	InstanceName string
	Version      string
	// Config is summarized in the registration; may be nil
	Config *config.Config
	// Stores answer history requests; may be nil
	Stores *store.Bundle
	Logger hclog.Logger
}

// Client manages the WebSocket connection from a devcrew process to a viewer.
type Client struct {
	opts   Options
	logger hclog.Logger

	ws   *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	pending    map[string]chan *Envelope // requestID → response channel
	instanceID string                    // assigned by the viewer on register

	handlers map[MessageType]RequestHandler

	// Lifecycle
	done chan struct{}
	ctx  context.Context
	stop context.CancelFunc
}

// NewClient creates a new wsbridge client.
func NewClient(opts Options) *Client {
	ctx, stop := context.WithCancel(context.Background())
	c := &Client{
		opts:     opts,
		logger:   logging.OrNull(opts.Logger),
		send:     make(chan []byte, 256),
		pending:  make(map[string]chan *Envelope),
		handlers: make(map[MessageType]RequestHandler),
		done:     make(chan struct{}),
		ctx:      ctx,
		stop:     stop,
	}
	c.registerHandlers()
	return c
}

// Connect dials the viewer endpoint, registers, and starts the read/write pumps.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("connecting to viewer", "url", c.opts.URL)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	c.ws = ws

	// Start pumps first - register() needs them to send/receive messages
	go c.readPump()
	go c.writePump()

	if err := c.register(); err != nil {
		c.Close()
		return fmt.Errorf("register: %w", err)
	}

	c.logger.Info("registered with viewer", "instance", c.InstanceID())
	return nil
}

// Done is closed when the connection drops
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts down the client.
func (c *Client) Close() {
	c.stop()
	if c.ws != nil {
		c.ws.Close()
	}
}

// InstanceID returns the ID assigned by the viewer.
func (c *Client) InstanceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instanceID
}

func (c *Client) register() error {
	req, err := NewRequest(TypeRegister, &RegisterPayload{
		InstanceName: c.opts.InstanceName,
		Version:      c.opts.Version,
		Config:       ConfigToInstanceConfig(c.opts.Config),
	})
	if err != nil {
		return err
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}

	var ack RegisterAckPayload
	if err := DecodePayload(resp, &ack); err != nil {
		return fmt.Errorf("decode register ack: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("registration rejected: %s", ack.Reason)
	}

	c.mu.Lock()
	c.instanceID = ack.InstanceID
	c.mu.Unlock()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("invalid message from viewer", "error", err)
			continue
		}

		c.dispatch(&env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) dispatch(env *Envelope) {
	// Check if this is a response to a pending request
	if env.RequestID != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- env
			return
		}
	}

	switch env.Type {
	case TypeHeartbeat:
		ack, _ := NewResponse(env.RequestID, TypeHeartbeatAck, &HeartbeatAckPayload{})
		c.sendEnvelope(ack)
	default:
		handler, ok := c.handlers[env.Type]
		if !ok {
			c.logger.Debug("unhandled message type", "type", env.Type)
			return
		}
		resp, err := handler(env)
		if err != nil {
			errResp, _ := NewError(env.RequestID, "handler_error", err.Error())
			c.sendEnvelope(errResp)
			return
		}
		if resp != nil {
			c.sendEnvelope(resp)
		}
	}
}

func (c *Client) sendEnvelope(env *Envelope) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	case <-c.done:
		return ErrClosed
	}
}

// SendEvent sends a one-way event to the viewer (no response expected).
func (c *Client) SendEvent(env *Envelope) error {
	return c.sendEnvelope(env)
}

func (c *Client) sendRequest(env *Envelope) (*Envelope, error) {
	ch := make(chan *Envelope, 1)

	c.mu.Lock()
	c.pending[env.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, env.RequestID)
		c.mu.Unlock()
	}()

	if err := c.sendEnvelope(env); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Type == TypeError {
			var e ErrorPayload
			if err := DecodePayload(resp, &e); err == nil {
				return nil, fmt.Errorf("%s: %s", e.Code, e.Message)
			}
		}
		return resp, nil
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("request %s timed out", env.Type)
	case <-c.done:
		return nil, ErrClosed
	}
}
