package exchange

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.BindAddress = "127.0.0.1"
	cfg.BindPort = 0 // эфемерный порт, чтобы тесты не конфликтовали
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

// startResponder starts a responder on an ephemeral port and returns it
// with the bound port. Shutdown is registered as test cleanup.
func startResponder(t *testing.T, cfg *Config) (*Responder, int) {
	t.Helper()

	r := NewResponder(cfg)
	require.NoError(t, r.Start())

	go func() {
		_ = r.Serve()
	}()
	t.Cleanup(func() {
		_ = r.Close()
	})

	addr, ok := r.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return r, addr.Port
}

func TestResponder_Exchange(t *testing.T) {
	cfg := testConfig()
	_, port := startResponder(t, cfg)

	rq := NewRequester(cfg)
	ack, err := rq.Send("127.0.0.1", port, []byte("HELLO"))
	require.NoError(t, err)
	require.Equal(t, "ACK: HELLO (5 bytes)", string(ack))
}

func TestResponder_EmptyMessage(t *testing.T) {
	cfg := testConfig()
	_, port := startResponder(t, cfg)

	rq := NewRequester(cfg)
	ack, err := rq.Send("127.0.0.1", port, []byte{})
	require.NoError(t, err)
	require.Equal(t, "ACK:  (0 bytes)", string(ack))
}

func TestResponder_SequentialExchanges(t *testing.T) {
	// Два последовательных обмена независимы - никакого состояния
	// между соединениями
	cfg := testConfig()
	_, port := startResponder(t, cfg)

	rq := NewRequester(cfg)

	ack, err := rq.Send("127.0.0.1", port, []byte("first"))
	require.NoError(t, err)
	require.Equal(t, "ACK: first (5 bytes)", string(ack))

	ack, err = rq.Send("127.0.0.1", port, []byte("second"))
	require.NoError(t, err)
	require.Equal(t, "ACK: second (6 bytes)", string(ack))
}

func TestResponder_ConcurrentExchanges(t *testing.T) {
	cfg := testConfig()
	_, port := startResponder(t, cfg)

	const clients = 8

	var wg sync.WaitGroup
	errs := make([]error, clients)
	acks := make([][]byte, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rq := NewRequester(cfg)
			acks[i], errs[i] = rq.Send("127.0.0.1", port, []byte("ping"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "ACK: ping (4 bytes)", string(acks[i]))
	}
}

func TestResponder_OversizedFrameAbandoned(t *testing.T) {
	// Пир объявляет кадр сверх лимита: соединение бросается,
	// цикл accept продолжает работать
	cfg := testConfig()
	r, port := startResponder(t, cfg)

	conn, err := net.Dial("tcp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(cfg.MaxMessageSize+1))
	_, err = conn.Write(header)
	require.NoError(t, err)

	// Ответа не будет - сторона закрывает соединение
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.ErrorIs(t, err, io.EOF)

	// Следующий обмен проходит как ни в чём не бывало
	rq := NewRequester(cfg)
	ack, err := rq.Send("127.0.0.1", port, []byte("still alive"))
	require.NoError(t, err)
	require.Equal(t, "ACK: still alive (11 bytes)", string(ack))

	snap := r.GetSnapshot()
	require.GreaterOrEqual(t, snap.Rejected, uint64(1))
}

func TestResponder_PeerDisconnectDoesNotStopLoop(t *testing.T) {
	cfg := testConfig()
	_, port := startResponder(t, cfg)

	// Пир соединяется и молча уходит
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	rq := NewRequester(cfg)
	ack, err := rq.Send("127.0.0.1", port, []byte("HELLO"))
	require.NoError(t, err)
	require.Equal(t, "ACK: HELLO (5 bytes)", string(ack))
}

func TestResponder_CloseUnblocksServe(t *testing.T) {
	cfg := testConfig()
	r := NewResponder(cfg)
	require.NoError(t, r.Start())

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- r.Serve()
	}()

	// Даём циклу accept заблокироваться
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestResponder_CloseIsIdempotent(t *testing.T) {
	cfg := testConfig()
	r := NewResponder(cfg)
	require.NoError(t, r.Start())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestResponder_BindError(t *testing.T) {
	// Занимаем порт заранее
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig()
	cfg.BindPort = occupied.Addr().(*net.TCPAddr).Port

	r := NewResponder(cfg)
	err = r.Start()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrBind)
}

func TestResponder_ServeWithoutStart(t *testing.T) {
	r := NewResponder(testConfig())
	err := r.Serve()
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestResponder_Statistics(t *testing.T) {
	cfg := testConfig()
	r, port := startResponder(t, cfg)

	rq := NewRequester(cfg)
	for i := 0; i < 3; i++ {
		_, err := rq.Send("127.0.0.1", port, []byte("HELLO"))
		require.NoError(t, err)
	}

	snap := r.GetSnapshot()
	require.Equal(t, uint64(3), snap.ExchangesStarted)
	require.Equal(t, uint64(3), snap.ExchangesCompleted)
	require.Equal(t, uint64(0), snap.ExchangesFailed)
	require.Equal(t, uint64(15), snap.BytesReceived) // 3 x "HELLO"
	require.Greater(t, snap.BytesSent, uint64(0))
}

func TestResponder_WireTraceEnabled(t *testing.T) {
	// Трассировка не должна мешать самому обмену
	cfg := testConfig()
	cfg.WireTrace = true
	_, port := startResponder(t, cfg)

	rq := NewRequester(cfg)
	ack, err := rq.Send("127.0.0.1", port, []byte("traced"))
	require.NoError(t, err)
	require.Equal(t, "ACK: traced (6 bytes)", string(ack))
}
