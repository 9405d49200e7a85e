// Package chatclient is a Go client for the chat websocket API.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EvDisconnected is emitted on Events when the socket drops without Close.
const EvDisconnected = "disconnected"

const sendAttempts = 3

var (
	ErrClosed       = errors.New("chatclient: closed")
	ErrNotConnected = errors.New("chatclient: not connected")
	ErrNotInRoom    = errors.New("chatclient: not in a room")
)

// ServerError is an error event or failed ack reported by the server.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string { return e.Msg }

// Event is one inbound frame.
type Event struct {
	Type string
	Data json.RawMessage
}

func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

type waiter struct {
	match func(Event) bool
	ch    chan Event
}

type Client struct {
	url    string
	dialer *websocket.Dialer

	ackTimeout    time.Duration
	retryInterval time.Duration
	writeWait     time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	room    domain.RoomCode
	name    string
	waiters []*waiter
	closed  bool

	writeMu sync.Mutex
	nextAck atomic.Uint64
	events  chan Event
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithAckTimeout bounds how long one send attempt waits for its ack.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Client) { c.ackTimeout = d }
}

func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// Dial connects to the websocket endpoint at url, e.g. ws://host:3000/api/ws.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:           url,
		dialer:        websocket.DefaultDialer,
		ackTimeout:    5 * time.Second,
		retryInterval: time.Second,
		writeWait:     10 * time.Second,
		events:        make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)
	log.Debug().Str("module", "chatclient").Str("url", c.url).Msg("connected")
	return nil
}

// Events delivers every inbound frame, acks excluded. Frames are dropped
// when the consumer falls behind.
func (c *Client) Events() <-chan Event { return c.events }

// Room reports the room the client believes it is in.
func (c *Client) Room() (domain.RoomCode, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.name
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			if current {
				c.conn = nil
			}
			closed := c.closed
			c.mu.Unlock()
			if current && !closed {
				log.Warn().Err(err).Str("module", "chatclient").Msg("connection lost")
				c.emit(Event{Type: EvDisconnected})
			}
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "chatclient").Msg("bad frame")
			continue
		}
		ev := Event{Type: env.Type, Data: data}
		c.track(ev)
		c.resolve(ev)
		if ev.Type != core.EvAck {
			c.emit(ev)
		}
	}
}

// track keeps the local room view in step with server notices.
func (c *Client) track(ev Event) {
	if ev.Type != core.EvForceDisconnect {
		return
	}
	c.mu.Lock()
	c.room, c.name = "", ""
	c.mu.Unlock()
}

func (c *Client) resolve(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.match(ev) {
			w.ch <- ev
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("module", "chatclient").Str("type", ev.Type).Msg("event dropped")
	}
}

func (c *Client) expect(match func(Event) bool) *waiter {
	w := &waiter{match: match, ch: make(chan Event, 1)}
	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return w
}

func (c *Client) forget(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *Client) await(ctx context.Context, w *waiter) (Event, error) {
	select {
	case ev := <-w.ch:
		if ev.Type == core.EvError {
			var e core.ErrorEvent
			if err := ev.Decode(&e); err != nil {
				return ev, fmt.Errorf("decode error event: %w", err)
			}
			return ev, &ServerError{Msg: e.Error}
		}
		return ev, nil
	case <-ctx.Done():
		c.forget(w)
		return Event{}, ctx.Err()
	}
}

func (c *Client) write(v any) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func isType(types ...string) func(Event) bool {
	return func(ev Event) bool {
		for _, t := range types {
			if ev.Type == t {
				return true
			}
		}
		return false
	}
}

type roomRequest struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
	Username string          `json:"username,omitempty"`
}

// CreateRoom opens a room hosted by this client and returns its code.
func (c *Client) CreateRoom(ctx context.Context, username string) (domain.RoomCode, error) {
	w := c.expect(isType(core.EvRoomCreated, core.EvError))
	if err := c.write(roomRequest{Type: core.EvCreateRoom, Username: username}); err != nil {
		c.forget(w)
		return "", err
	}
	ev, err := c.await(ctx, w)
	if err != nil {
		return "", err
	}
	var created core.RoomCreated
	if err := ev.Decode(&created); err != nil {
		return "", fmt.Errorf("decode roomCreated: %w", err)
	}
	name, _ := domain.NormalizeUsername(username)
	c.mu.Lock()
	c.room, c.name = created.RoomCode, name
	c.mu.Unlock()
	return created.RoomCode, nil
}

func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	w := c.expect(isType(core.EvUsernameCheckResult))
	if err := c.write(roomRequest{Type: core.EvCheckUsername, Username: username}); err != nil {
		c.forget(w)
		return false, err
	}
	ev, err := c.await(ctx, w)
	if err != nil {
		return false, err
	}
	var res core.UsernameCheckResult
	if err := ev.Decode(&res); err != nil {
		return false, fmt.Errorf("decode usernameCheckResult: %w", err)
	}
	return res.IsTaken, nil
}

// Join enters the room and returns once the server announced the join.
func (c *Client) Join(ctx context.Context, code domain.RoomCode, username string) error {
	name, _ := domain.NormalizeUsername(username)
	w := c.expect(func(ev Event) bool {
		if ev.Type == core.EvError {
			return true
		}
		if ev.Type != core.EvUserJoined {
			return false
		}
		var j core.UserJoined
		return ev.Decode(&j) == nil && j.Username == name
	})
	if err := c.write(roomRequest{Type: core.EvJoinRoom, RoomCode: code, Username: username}); err != nil {
		c.forget(w)
		return err
	}
	if _, err := c.await(ctx, w); err != nil {
		return err
	}
	c.mu.Lock()
	c.room, c.name = code, name
	c.mu.Unlock()
	return nil
}

type sendRequest struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
	Message  string          `json:"message"`
	Username string          `json:"username"`
	AckID    string          `json:"ackId"`
}

// Send posts text to the current room. A missing ack is retried up to three
// attempts in total; a rejection by the server is returned at once.
func (c *Client) Send(ctx context.Context, text string) error {
	code, name := c.Room()
	if code == "" {
		return ErrNotInRoom
	}

	attempt := 0
	op := func() error {
		attempt++
		id := strconv.FormatUint(c.nextAck.Add(1), 10)
		w := c.expect(func(ev Event) bool {
			if ev.Type != core.EvAck {
				return false
			}
			var a core.Ack
			return ev.Decode(&a) == nil && a.AckID == id
		})
		err := c.write(sendRequest{Type: core.EvSendMessage, RoomCode: code, Message: text, Username: name, AckID: id})
		if errors.Is(err, ErrClosed) {
			c.forget(w)
			return backoff.Permanent(err)
		}
		if err != nil {
			c.forget(w)
			return err
		}

		actx, cancel := context.WithTimeout(ctx, c.ackTimeout)
		defer cancel()
		ev, err := c.await(actx, w)
		if err != nil {
			log.Warn().Err(err).Str("module", "chatclient").Int("attempt", attempt).Msg("no ack")
			return err
		}
		var a core.Ack
		if err := ev.Decode(&a); err != nil {
			return backoff.Permanent(fmt.Errorf("decode ack: %w", err))
		}
		if !a.Success {
			return backoff.Permanent(&ServerError{Msg: a.Error})
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), sendAttempts-1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Leave runs both phases of a leave. The socket stays open.
func (c *Client) Leave() error {
	if err := c.write(core.Envelope{Type: core.EvUserLeaving}); err != nil {
		return err
	}
	if err := c.write(core.Envelope{Type: core.EvLeaveRoom}); err != nil {
		return err
	}
	c.mu.Lock()
	c.room, c.name = "", ""
	c.mu.Unlock()
	return nil
}

// CloseRoom asks the server to close the room this client hosts.
func (c *Client) CloseRoom() error {
	return c.write(core.Envelope{Type: core.EvRoomClosed})
}

// Reconnect dials again and, if the client was in a room, joins it under the
// same name.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	code, name := c.room, c.name
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	err := backoff.Retry(func() error {
		err := c.connect(ctx)
		if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(eb, 5), ctx))
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if code == "" {
		return nil
	}
	log.Info().Str("module", "chatclient").Str("room", string(code)).Msg("rejoining")
	return c.Join(ctx, code, name)
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}
