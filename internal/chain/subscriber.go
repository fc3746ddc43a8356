// subscriber.go maintains the WebSocket log feed powering reactive trading.
//
// One connection carries a logsSubscribe per tracked mint. The subscriber
// auto-reconnects with exponential backoff (1s → 30s max, capped attempt
// count) and re-subscribes every tracked mint on reconnection. A read
// deadline detects silent server failures.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPingInterval     = 50 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsMaxReconnectWait = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
	logBufferSize      = 256
)

// LogEvent is one raw log notification for a tracked mint.
type LogEvent struct {
	Mint      string
	Signature string
	Logs      []string
	Err       string // transaction-level error, non-empty means the tx failed
}

// Subscriber manages the log-feed connection: lifecycle, per-mint
// subscription tracking, and routing of notifications to the event channel.
type Subscriber struct {
	url           string
	maxReconnects int

	conn   *websocket.Conn
	connMu sync.Mutex

	trackedMu sync.RWMutex
	tracked   map[string]bool // mint → subscribed

	// Server-assigned ids: request id → mint while the subscription is being
	// established, then subscription id → mint for routing notifications.
	idMu       sync.Mutex
	nextReqID  int64
	pendingReq map[int64]string
	subs       map[int64]string

	eventCh chan LogEvent
	logger  *slog.Logger
}

// NewSubscriber creates a log subscriber for the given WebSocket endpoint.
func NewSubscriber(wsURL string, maxReconnects int, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:           wsURL,
		maxReconnects: maxReconnects,
		tracked:       make(map[string]bool),
		pendingReq:    make(map[int64]string),
		subs:          make(map[int64]string),
		eventCh:       make(chan LogEvent, logBufferSize),
		logger:        logger.With("component", "subscriber"),
	}
}

// Events returns the read-only channel of log notifications.
func (s *Subscriber) Events() <-chan LogEvent { return s.eventCh }

// Track adds a mint to the subscription set and subscribes immediately if
// connected. Tracked mints are re-subscribed on every reconnect.
func (s *Subscriber) Track(mint string) error {
	s.trackedMu.Lock()
	already := s.tracked[mint]
	s.tracked[mint] = true
	s.trackedMu.Unlock()

	if already {
		return nil
	}
	return s.subscribeMint(mint)
}

// Untrack drops a mint from the subscription set. The server-side
// subscription lapses on the next reconnect.
func (s *Subscriber) Untrack(mint string) {
	s.trackedMu.Lock()
	delete(s.tracked, mint)
	s.trackedMu.Unlock()
}

// Run connects and maintains the feed until ctx is cancelled or the
// reconnect budget is exhausted.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := time.Second
	attempts := 0

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		if s.maxReconnects > 0 && attempts > s.maxReconnects {
			return fmt.Errorf("log feed: reconnect budget exhausted after %d attempts: %w", attempts, err)
		}

		s.logger.Warn("log feed disconnected, reconnecting",
			"error", err,
			"attempt", attempts,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

// Close closes the active connection.
func (s *Subscriber) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Subscriber) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	// Stale subscription ids do not survive a reconnect.
	s.idMu.Lock()
	s.pendingReq = make(map[int64]string)
	s.subs = make(map[int64]string)
	s.idMu.Unlock()

	s.trackedMu.RLock()
	mints := make([]string, 0, len(s.tracked))
	for m := range s.tracked {
		mints = append(mints, m)
	}
	s.trackedMu.RUnlock()

	for _, m := range mints {
		if err := s.subscribeMint(m); err != nil {
			return fmt.Errorf("resubscribe %s: %w", m, err)
		}
	}

	s.logger.Info("log feed connected", "mints", len(mints))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s.dispatchMessage(msg)
	}
}

type subscribeMsg struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func (s *Subscriber) subscribeMint(mint string) error {
	s.idMu.Lock()
	s.nextReqID++
	id := s.nextReqID
	s.pendingReq[id] = mint
	s.idMu.Unlock()

	return s.writeJSON(subscribeMsg{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params: []any{
			map[string][]string{"mentions": {mint}},
			map[string]string{"commitment": "confirmed"},
		},
	})
}

func (s *Subscriber) dispatchMessage(data []byte) {
	var envelope struct {
		ID     int64           `json:"id"`
		Result json.RawMessage `json:"result"`
		Method string          `json:"method"`
		Params struct {
			Subscription int64 `json:"subscription"`
			Result       struct {
				Value struct {
					Signature string          `json:"signature"`
					Logs      []string        `json:"logs"`
					Err       json.RawMessage `json:"err"`
				} `json:"value"`
			} `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	// Subscription confirmation: bind the server's subscription id.
	if envelope.ID != 0 && len(envelope.Result) > 0 {
		var subID int64
		if err := json.Unmarshal(envelope.Result, &subID); err != nil {
			return
		}
		s.idMu.Lock()
		if mint, ok := s.pendingReq[envelope.ID]; ok {
			s.subs[subID] = mint
			delete(s.pendingReq, envelope.ID)
		}
		s.idMu.Unlock()
		return
	}

	if envelope.Method != "logsNotification" {
		return
	}

	s.idMu.Lock()
	mint, ok := s.subs[envelope.Params.Subscription]
	s.idMu.Unlock()
	if !ok {
		s.logger.Debug("notification for unknown subscription",
			"subscription", envelope.Params.Subscription)
		return
	}

	val := envelope.Params.Result.Value
	evt := LogEvent{
		Mint:      mint,
		Signature: val.Signature,
		Logs:      val.Logs,
	}
	if len(val.Err) > 0 && string(val.Err) != "null" {
		evt.Err = string(val.Err)
	}

	select {
	case s.eventCh <- evt:
	default:
		s.logger.Warn("log channel full, dropping event", "mint", mint)
	}
}

func (s *Subscriber) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (s *Subscriber) writeJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		// Not connected yet: the mint stays tracked and subscribes on connect.
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(v)
}
