package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/ocpp"
)

// DefaultCallTimeout bounds how long a call waits for its response.
const DefaultCallTimeout = 30 * time.Second

// ErrCallTimeout is returned when the central system never answered.
var ErrCallTimeout = errors.New("session: call timed out")

// ErrSessionClosed fails pending calls when the connection goes away.
var ErrSessionClosed = errors.New("session: closed")

// PeerError is a CallError received from the central system.
type PeerError struct {
	Code        ocpp.ErrorCode
	Description string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("central system returned %s: %s", e.Code, e.Description)
}

type outcome struct {
	payload json.RawMessage
	err     error
}

// sender writes one encoded frame to the wire.
type sender interface {
	Send(ctx context.Context, data []byte) error
}

// Correlator matches outgoing calls to their responses by message id.
// Ids are allocated monotonically; responses arriving after a call has
// been resolved or timed out are dropped.
type Correlator struct {
	seq     atomic.Uint64
	mu      sync.Mutex
	pending map[string]chan outcome
	timeout time.Duration
	log     logger.Logger
}

func NewCorrelator(timeout time.Duration, log logger.Logger) *Correlator {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Correlator{
		pending: make(map[string]chan outcome),
		timeout: timeout,
		log:     log,
	}
}

// Call sends a request and blocks until the matching response, a peer
// error, the timeout, or context cancellation.
func (c *Correlator) Call(ctx context.Context, conn sender, action ocpp.Action, payload any) (json.RawMessage, error) {
	id := strconv.FormatUint(c.seq.Add(1), 10)

	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", action, err)
		}
	}
	data, err := ocpp.MarshalCall(ocpp.Call{ID: id, Action: action, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encoding %s call: %w", action, err)
	}

	ch := make(chan outcome, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := conn.Send(ctx, data); err != nil {
		c.drop(id)
		return nil, fmt.Errorf("sending %s call: %w", action, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.payload, out.err
	case <-timer.C:
		c.drop(id)
		c.log.Warnf("%s call %s timed out after %s", action, id, c.timeout)
		return nil, fmt.Errorf("%s call %s: %w", action, id, ErrCallTimeout)
	case <-ctx.Done():
		c.drop(id)
		return nil, ctx.Err()
	}
}

// Resolve completes a pending call with a CallResult payload. Unmatched
// ids are ignored.
func (c *Correlator) Resolve(id string, payload json.RawMessage) {
	if ch, ok := c.take(id); ok {
		ch <- outcome{payload: payload}
	} else {
		c.log.Debugf("ignoring late or unknown call result %s", id)
	}
}

// Fail completes a pending call with a CallError from the peer.
func (c *Correlator) Fail(id string, code ocpp.ErrorCode, description string) {
	if ch, ok := c.take(id); ok {
		ch <- outcome{err: &PeerError{Code: code, Description: description}}
	} else {
		c.log.Debugf("ignoring late or unknown call error %s", id)
	}
}

// FailAll aborts every pending call, used when the connection closes.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan outcome)
	c.mu.Unlock()

	if len(pending) > 0 {
		c.log.Warnf("failing %d pending calls: %v", len(pending), err)
	}
	for _, ch := range pending {
		ch <- outcome{err: err}
	}
}

// Pending reports how many calls await a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) take(id string) (chan outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return ch, ok
}

func (c *Correlator) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
