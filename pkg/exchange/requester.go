package exchange

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"tcpexchange"
	"tcpexchange/pkg/wiretrace"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrConnect возвращается, если цель отказала или не ответила за
	// таймаут соединения
	ErrConnect = errors.New("connect failed")
	// ErrSend возвращается, если сообщение не удалось записать целиком
	ErrSend = errors.New("send failed")
	// ErrReceive возвращается, если подтверждение не удалось прочитать
	ErrReceive = errors.New("receive failed")
	// ErrMessageTooLarge возвращается для сообщения сверх лимита,
	// до установки соединения
	ErrMessageTooLarge = errors.New("message exceeds size limit")
)

// Requester is the connecting endpoint. Each Send is one complete,
// independent transaction: dial, write one framed message, read the
// framed acknowledgment, close. No connection is ever reused.
type Requester struct {
	cfg    *Config
	stats  *tcpexchange.Statistics
	tracer *wiretrace.Tracer
}

// NewRequester creates a requester with the given configuration
func NewRequester(cfg *Config) *Requester {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	rq := &Requester{
		cfg:   cfg,
		stats: tcpexchange.NewStatistics(),
	}
	if cfg.WireTrace {
		rq.tracer = wiretrace.NewTracer()
	}

	return rq
}

// Send performs one exchange against host:port and returns the
// acknowledgment bytes. The connection is closed on every exit path.
func (rq *Requester) Send(host string, port int, message []byte) ([]byte, error) {
	if len(message) > rq.cfg.MaxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge,
			len(message), rq.cfg.MaxMessageSize)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	start := time.Now()
	logger := log.With().Str("target", addr).Logger()

	sm := tcpexchange.NewExchangeStateMachine()
	sm.SetStateChangeCallback(func(oldState, newState tcpexchange.ExchangeState, event tcpexchange.ExchangeEvent) {
		logger.Debug().
			Stringer("from", oldState).
			Stringer("to", newState).
			Stringer("event", event).
			Msg("exchange state changed")
	})

	rq.stats.RecordExchangeStarted()

	conn, err := net.DialTimeout("tcp", addr, rq.cfg.ConnectTimeout)
	if err != nil {
		sm.ProcessEvent(tcpexchange.FAIL)
		rq.recordFailure(err)
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, addr, err)
	}
	defer conn.Close()

	sm.ProcessEvent(tcpexchange.DIAL)
	logger.Debug().Str("local", conn.LocalAddr().String()).Msg("connected")

	if err := conn.SetWriteDeadline(time.Now().Add(rq.cfg.WriteTimeout)); err != nil {
		sm.ProcessEvent(tcpexchange.FAIL)
		rq.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrSend, err)
	}

	if _, err := tcpexchange.WriteFrame(conn, message, rq.cfg.MaxMessageSize); err != nil {
		sm.ProcessEvent(tcpexchange.FAIL)
		rq.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrSend, err)
	}

	sm.ProcessEvent(tcpexchange.SEND_REQUEST)
	rq.stats.RecordBytesSent(uint64(len(message)))
	rq.traceConn(conn, message, wiretrace.Outbound)

	if err := conn.SetReadDeadline(time.Now().Add(rq.cfg.ReadTimeout)); err != nil {
		sm.ProcessEvent(tcpexchange.FAIL)
		rq.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrReceive, err)
	}

	ack, err := tcpexchange.ReadFrame(conn, tcpexchange.AckLimit(rq.cfg.MaxMessageSize))
	if err != nil {
		sm.ProcessEvent(tcpexchange.FAIL)
		rq.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrReceive, err)
	}

	sm.ProcessEvent(tcpexchange.READ_RESPONSE)
	rq.stats.RecordBytesReceived(uint64(len(ack)))
	rq.traceConn(conn, ack, wiretrace.Inbound)

	sm.ProcessEvent(tcpexchange.CLOSE)
	rq.stats.RecordExchangeCompleted(time.Since(start))
	logger.Info().
		Int("sent_bytes", len(message)).
		Int("ack_bytes", len(ack)).
		Dur("elapsed", time.Since(start)).
		Msg("exchange completed")

	return ack, nil
}

// recordFailure classifies a transaction error for the statistics
func (rq *Requester) recordFailure(err error) {
	rq.stats.RecordExchangeFailed()

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		rq.stats.RecordTimeout()
	case errors.Is(err, tcpexchange.ErrFrameTooLarge):
		rq.stats.RecordRejected()
	default:
		rq.stats.RecordReset()
	}
}

// traceConn emits the synthetic per-layer trace when enabled
func (rq *Requester) traceConn(conn net.Conn, payload []byte, dir wiretrace.Direction) {
	if rq.tracer == nil {
		return
	}

	src, _ := conn.LocalAddr().(*net.TCPAddr)
	dst, _ := conn.RemoteAddr().(*net.TCPAddr)
	if dir == wiretrace.Inbound {
		src, dst = dst, src
	}

	if _, err := rq.tracer.TraceSegment(src, dst, payload, dir); err != nil {
		log.Debug().Err(err).Msg("wire trace skipped")
	}
}

// GetSnapshot returns a snapshot of the requester statistics
func (rq *Requester) GetSnapshot() tcpexchange.Snapshot {
	return rq.stats.GetSnapshot()
}
