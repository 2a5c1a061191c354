package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lockrelay/lockd/internal/frame"
	"github.com/lockrelay/lockd/pkg/log"
)

const (
	devicePort        = 23
	readTimeout       = 2 * time.Second
	reconnectDelay    = 2 * time.Second
	drainInterval     = 500 * time.Millisecond
	sendRetries       = 3
	unlockRetries     = 3
)

// Dialer opens the transport connection to a device. Production code
// uses net.Dialer; tests substitute a net.Pipe-backed fake.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

func defaultDialer(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr, devicePort))
}

type queueItem struct {
	cmd     []byte
	retries int
}

// Session owns the single TCP connection to one device. All access to
// the connection goes through connMu, which is the serialization token:
// only one command is ever in flight on the wire at a time. Unlock
// commands are queued and drained by at most one goroutine at a time,
// started by EnqueueUnlock when none is running and exiting once the
// queue is empty, so
// that a burst of pulses doesn't contend with status polls beyond the
// per-command delay built into the drain loop.
type Session struct {
	addr   string
	dial   Dialer
	logger log.Logger

	connMu sync.Mutex
	conn   net.Conn

	cache *responseCache

	queueMu  sync.Mutex
	queue    []queueItem
	draining bool
}

// NewSession creates a session for the device at addr using the default
// TCP dialer.
func NewSession(addr string, logger log.Logger) *Session {
	return newSessionWithDialer(addr, defaultDialer, logger)
}

func newSessionWithDialer(addr string, dial Dialer, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Session{
		addr:   addr,
		dial:   dial,
		logger: logger,
		cache:  newResponseCache(),
	}
}

// Addr returns the device address this session is bound to.
func (s *Session) Addr() string { return s.addr }

// Connect opens the TCP connection. Callers that only ever use
// SendStatusRequest/EnqueueUnlock do not need to call Connect directly;
// the fleet initializer calls it once at startup to prove reachability.
func (s *Session) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	conn, err := s.dial(ctx, s.addr)
	if err != nil {
		s.logStateChange("", "disconnected", err.Error())
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, s.addr, err)
	}
	s.conn = conn
	s.logStateChange("disconnected", "idle", "")
	return nil
}

// Disconnect closes the connection if one is present and clears it.
// Reset errors on close are tolerated silently: the peer is presumed
// gone either way.
func (s *Session) Disconnect() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.disconnectLocked("shutdown")
}

func (s *Session) disconnectLocked(reason string) {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	s.logStateChange("idle", "disconnected", reason)
}

// reconnectLocked must be called with connMu held. It disconnects,
// sleeps the fixed reconnect delay, then attempts to reconnect. Failure
// is swallowed; the caller observes a nil conn on its next write and
// treats it as another transport reset, which consumes a retry.
func (s *Session) reconnectLocked(ctx context.Context) {
	s.disconnectLocked("reconnecting")
	select {
	case <-time.After(reconnectDelay):
	case <-ctx.Done():
		return
	}
	_ = s.connectLocked(ctx)
}

// SendStatusRequest sends cmd and returns its response, consulting and
// populating the response cache. It retries up to sendRetries times,
// reconnecting on a transport reset or short read. Any other failure
// (or retry exhaustion) reports no response rather than an error: the
// caller's contract is "no response means the board is unreachable."
func (s *Session) SendStatusRequest(ctx context.Context, cmd []byte) ([]byte, bool) {
	if cached, ok := s.cache.get(cmd); ok {
		s.logFrame(log.DirectionOut, cmd, true)
		return cached, true
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < sendRetries; attempt++ {
		resp, err := s.attemptOnce(ctx, cmd)
		if err == nil {
			s.cache.put(cmd, resp)
			return resp, true
		}
		lastErr = err
		if errors.Is(err, ErrTransportReset) || errors.Is(err, ErrShortRead) {
			s.reconnectLocked(ctx)
			continue
		}
		break
	}
	if lastErr != nil {
		s.logError(lastErr, "send_status_request")
	}
	return nil, false
}

func (s *Session) attemptOnce(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := s.writeCommand(cmd); err != nil {
		return nil, err
	}
	s.logFrame(log.DirectionOut, cmd, false)
	resp, err := s.readResponse()
	if err != nil {
		return nil, err
	}
	s.logFrame(log.DirectionIn, resp, false)
	return resp, nil
}

func (s *Session) writeCommand(cmd []byte) error {
	if s.conn == nil {
		return fmt.Errorf("%w: no connection", ErrTransportReset)
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(readTimeout))
	if _, err := s.conn.Write(cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportReset, err)
	}
	return nil
}

// readResponse accumulates exactly frame.ResponseSize bytes. A timeout
// yields whatever was collected, reported as ErrTimeout if no byte
// arrived and ErrShortRead otherwise; EOF before a full frame is
// ErrShortRead; any other read error is ErrTransportReset.
func (s *Session) readResponse() ([]byte, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("%w: no connection", ErrTransportReset)
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))

	buf := make([]byte, frame.ResponseSize)
	n, err := io.ReadFull(s.conn, buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if n == 0 {
				return buf[:n], fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return buf[:n], fmt.Errorf("%w: %v", ErrShortRead, err)
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return buf[:n], fmt.Errorf("%w: %v", ErrShortRead, err)
		}
		return buf[:n], fmt.Errorf("%w: %v", ErrTransportReset, err)
	}
	return buf, nil
}

// EnqueueUnlock appends an unlock command to the drain queue and starts
// the drainer goroutine if it is not already running.
func (s *Session) EnqueueUnlock(board byte, lockNumber int) {
	cmd := frame.EncodeUnlock(board, lockNumber)

	s.queueMu.Lock()
	s.queue = append(s.queue, queueItem{cmd: cmd[:], retries: unlockRetries})
	start := !s.draining
	if start {
		s.draining = true
	}
	s.queueMu.Unlock()

	if start {
		go s.drain()
	}
}

func (s *Session) drain() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.queueMu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		s.sendUnlock(item)
		time.Sleep(drainInterval)
	}
}

// sendUnlock fires the write-only unlock command. Success is defined as
// a completed write; the board does not ack unlocks on this channel.
// Retries are consumed only on a transport reset, matching the source
// behavior of not decrementing on an unrelated failure.
func (s *Session) sendUnlock(item queueItem) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for attempt := 0; attempt < item.retries; attempt++ {
		err := s.writeCommand(item.cmd)
		if err == nil {
			s.logFrame(log.DirectionOut, item.cmd, false)
			return
		}
		if errors.Is(err, ErrTransportReset) {
			s.reconnectLocked(context.Background())
			continue
		}
		s.logError(err, "enqueue_unlock")
		return
	}
	s.logError(fmt.Errorf("%w: retries exhausted", ErrTransportReset), "enqueue_unlock")
}

// GetStatus polls every board in [0, boardCount) and decodes each
// response. A board with no response or a malformed one is simply
// omitted from the result; callers treat absence as offline.
func (s *Session) GetStatus(ctx context.Context, boardCount int) map[int]map[int]bool {
	result := make(map[int]map[int]bool, boardCount)
	for board := 0; board < boardCount; board++ {
		cmd := frame.EncodeStatus(byte(board))
		resp, ok := s.SendStatusRequest(ctx, cmd[:])
		if !ok {
			continue
		}
		statuses, err := frame.DecodeStatusBitmap(resp)
		if err != nil {
			s.logError(err, "get_status")
			continue
		}
		result[board] = statuses
	}
	return result
}

func (s *Session) logFrame(dir log.Direction, data []byte, cached bool) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		DeviceAddr: s.addr,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryFrame,
		Frame:      &log.FrameEvent{Size: len(data), Data: data, Cached: cached},
	})
}

func (s *Session) logStateChange(oldState, newState, reason string) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		DeviceAddr: s.addr,
		Layer:      log.LayerSession,
		Category:   log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (s *Session) logError(err error, context string) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		DeviceAddr: s.addr,
		Layer:      log.LayerSession,
		Category:   log.CategoryError,
		Error:      &log.ErrorEventData{Message: err.Error(), Context: context},
	})
}
