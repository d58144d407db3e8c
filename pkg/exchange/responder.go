package exchange

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"tcpexchange"
	"tcpexchange/pkg/wiretrace"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBind возвращается, если слушающий сокет не удалось привязать
	// (адрес занят или недоступен). Фатальна на старте
	ErrBind = errors.New("bind failed")
	// ErrNotStarted возвращается при попытке обслуживать без Start
	ErrNotStarted = errors.New("responder is not started")
)

// Responder is the listening endpoint: it accepts connections, reads one
// framed message per connection, replies with a deterministic
// acknowledgment and closes. Every connection is handled in its own
// goroutine so one slow peer never blocks the others; connections share
// nothing but the statistics counters.
type Responder struct {
	cfg    *Config
	stats  *tcpexchange.Statistics
	tracer *wiretrace.Tracer

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

// NewResponder creates a responder with the given configuration
func NewResponder(cfg *Config) *Responder {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	r := &Responder{
		cfg:   cfg,
		stats: tcpexchange.NewStatistics(),
	}
	if cfg.WireTrace {
		r.tracer = wiretrace.NewTracer()
	}

	return r
}

// Start binds the listening socket. Bind failures are fatal: the caller
// is expected to exit non-zero.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := r.cfg.BindAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %v", ErrBind, addr, err)
	}

	r.listener = listener
	log.Info().Str("addr", listener.Addr().String()).Msg("responder listening")

	return nil
}

// Addr returns the bound listen address, or nil before Start
func (r *Responder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Serve accepts connections until Close is called. A failed accept is
// logged and the loop continues; a single bad peer never terminates the
// responder. Returns nil after a clean shutdown.
func (r *Responder) Serve() error {
	r.mu.Lock()
	listener := r.listener
	r.mu.Unlock()

	if listener == nil {
		return ErrNotStarted
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if r.isClosed() {
				// Закрытие слушающего сокета - штатный сигнал остановки
				r.wg.Wait()
				return nil
			}
			log.Error().Err(err).Msg("accept failed")
			continue
		}

		r.wg.Add(1)
		go func(conn net.Conn) {
			defer r.wg.Done()
			r.handleConnection(conn)
		}(conn)
	}
}

// handleConnection runs one complete exchange: read the message, write
// the acknowledgment, close. Errors abandon this connection only.
func (r *Responder) handleConnection(conn net.Conn) {
	defer conn.Close()

	id := uuid.NewString()
	start := time.Now()
	logger := log.With().
		Str("conn_id", id).
		Str("peer", conn.RemoteAddr().String()).
		Logger()

	sm := tcpexchange.NewExchangeStateMachine()
	sm.SetStateChangeCallback(func(oldState, newState tcpexchange.ExchangeState, event tcpexchange.ExchangeEvent) {
		logger.Debug().
			Stringer("from", oldState).
			Stringer("to", newState).
			Stringer("event", event).
			Msg("exchange state changed")
	})

	r.stats.RecordExchangeStarted()
	sm.ProcessEvent(tcpexchange.ACCEPT)

	fail := func(err error, msg string) {
		sm.ProcessEvent(tcpexchange.FAIL)
		r.recordFailure(err)
		logger.Warn().Err(err).Msg(msg)
	}

	if err := conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout)); err != nil {
		fail(err, "failed to set read deadline")
		return
	}

	message, err := tcpexchange.ReadFrame(conn, r.cfg.MaxMessageSize)
	if err != nil {
		fail(err, "failed to read message")
		return
	}

	sm.ProcessEvent(tcpexchange.READ_REQUEST)
	r.stats.RecordBytesReceived(uint64(len(message)))
	logger.Info().Int("bytes", len(message)).Msg("message received")

	r.traceConn(conn, message, wiretrace.Inbound)

	ack := tcpexchange.BuildAck(message)

	if err := conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout)); err != nil {
		fail(err, "failed to set write deadline")
		return
	}

	if _, err := tcpexchange.WriteFrame(conn, ack, tcpexchange.AckLimit(r.cfg.MaxMessageSize)); err != nil {
		fail(err, "failed to write acknowledgment")
		return
	}

	sm.ProcessEvent(tcpexchange.SEND_RESPONSE)
	r.stats.RecordBytesSent(uint64(len(ack)))

	r.traceConn(conn, ack, wiretrace.Outbound)

	sm.ProcessEvent(tcpexchange.CLOSE)
	r.stats.RecordExchangeCompleted(time.Since(start))
	logger.Info().
		Int("ack_bytes", len(ack)).
		Dur("elapsed", time.Since(start)).
		Msg("exchange completed")
}

// recordFailure classifies a per-connection error for the statistics
func (r *Responder) recordFailure(err error) {
	r.stats.RecordExchangeFailed()

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		r.stats.RecordTimeout()
	case errors.Is(err, tcpexchange.ErrFrameTooLarge):
		r.stats.RecordRejected()
	case errors.Is(err, net.ErrClosed):
	default:
		// Остальное считаем сбросом со стороны пира
		r.stats.RecordReset()
	}
}

// traceConn emits the synthetic per-layer trace when enabled
func (r *Responder) traceConn(conn net.Conn, payload []byte, dir wiretrace.Direction) {
	if r.tracer == nil {
		return
	}

	src, _ := conn.LocalAddr().(*net.TCPAddr)
	dst, _ := conn.RemoteAddr().(*net.TCPAddr)
	if dir == wiretrace.Inbound {
		src, dst = dst, src
	}

	if _, err := r.tracer.TraceSegment(src, dst, payload, dir); err != nil {
		log.Debug().Err(err).Msg("wire trace skipped")
	}
}

// GetSnapshot returns a snapshot of the responder statistics
func (r *Responder) GetSnapshot() tcpexchange.Snapshot {
	return r.stats.GetSnapshot()
}

func (r *Responder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops accepting, unblocks Serve and waits for in-flight
// connections to finish. Idempotent.
func (r *Responder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	listener := r.listener
	r.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	r.wg.Wait()
	return err
}
