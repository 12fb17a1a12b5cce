package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrSubscribeRejected is returned when the node answers a subscribe
// request with an error object.
var ErrSubscribeRejected = errors.New("subscription rejected")

// WSClientConfig configures WebSocket sessions.
type WSClientConfig struct {
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds waiting for all subscription confirmations.
	SubscribeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages. Pongs extend it.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WSClient runs logsSubscribe sessions over gorilla/websocket. Every call
// to Stream dials a fresh connection and resubscribes all filters.
type WSClient struct {
	endpoint  string
	config    WSClientConfig
	log       logrus.FieldLogger
	requestID atomic.Uint64
}

var _ LogStream = (*WSClient)(nil)

// NewWSClient creates a client. No connection is made until Stream.
func NewWSClient(endpoint string, config *WSClientConfig, log logrus.FieldLogger) *WSClient {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSClient{
		endpoint: endpoint,
		config:   cfg,
		log:      log.WithField("component", "ws"),
	}
}

// session is one live connection. Writes are serialized by writeMu.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	config  WSClientConfig
}

func (s *session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *session) close() {
	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.conn.Close()
}

// Stream dials, subscribes every filter and forwards notifications to out
// until the connection fails or ctx is done. It never closes out.
// A nil error is returned only when ctx was cancelled.
func (c *WSClient) Stream(ctx context.Context, filters []LogsFilter, out chan<- LogNotification) error {
	if len(filters) == 0 {
		return errors.New("no filters")
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s := &session{conn: conn, config: c.config}

	// Closing the connection unblocks ReadMessage on cancellation.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.close()
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	subs, err := c.subscribe(ctx, s, filters)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	c.log.WithField("subscriptions", len(subs)).Info("subscribed")

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(s, stop, ctx.Done())
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		notif, ok := parseNotification(message)
		if !ok {
			continue
		}
		if _, known := subs[notif.subscription]; !known {
			continue
		}

		select {
		case out <- notif.LogNotification:
		case <-ctx.Done():
			return nil
		}
	}
}

// subscribe sends one logsSubscribe per filter and waits for every
// confirmation. Notifications arriving early are dropped; the session is
// not yet live for the caller.
func (c *WSClient) subscribe(ctx context.Context, s *session, filters []LogsFilter) (map[int64]LogsFilter, error) {
	pending := make(map[uint64]LogsFilter, len(filters))
	for _, f := range filters {
		id := c.requestID.Add(1)
		if err := s.writeJSON(buildSubscribeRequest(id, f)); err != nil {
			return nil, fmt.Errorf("write subscribe: %w", err)
		}
		pending[id] = f
	}

	deadline := time.Now().Add(c.config.SubscribeTimeout)
	if d := time.Now().Add(c.config.ReadTimeout); d.Before(deadline) {
		deadline = d
	}
	s.conn.SetReadDeadline(deadline)

	subs := make(map[int64]LogsFilter, len(filters))
	for len(pending) > 0 {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("await subscription: %w", err)
		}

		var resp wsResponse
		if err := json.Unmarshal(message, &resp); err != nil || resp.ID == 0 {
			continue
		}
		f, ok := pending[resp.ID]
		if !ok {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: code=%d msg=%s", ErrSubscribeRejected, resp.Error.Code, resp.Error.Message)
		}
		var subID int64
		if err := json.Unmarshal(resp.Result, &subID); err != nil {
			return nil, fmt.Errorf("decode subscription id: %w", err)
		}
		delete(pending, resp.ID)
		subs[subID] = f
	}

	s.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	return subs, nil
}

func (c *WSClient) pingLoop(s *session, stop <-chan struct{}, done <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				// The read loop will see the broken connection.
				c.log.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}

func buildSubscribeRequest(id uint64, f LogsFilter) wsRequest {
	mentions := make(map[string]interface{})
	if len(f.Mentions) > 0 {
		mentions["mentions"] = f.Mentions
	} else {
		mentions["all"] = nil
	}
	commitment := f.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": commitment},
		},
	}
}

type routedNotification struct {
	LogNotification
	subscription int64
}

func parseNotification(message []byte) (routedNotification, bool) {
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "logsNotification" || notif.Params == nil {
		return routedNotification{}, false
	}
	value := notif.Params.Result.Value
	n := routedNotification{
		LogNotification: LogNotification{
			Signature: value.Signature,
			Logs:      value.Logs,
			Err:       value.Err,
		},
		subscription: notif.Params.Subscription,
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}
	return n, true
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
