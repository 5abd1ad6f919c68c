package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	addr := l.LocalAddr().String()
	require.NoError(t, l.Close())
	return addr
}

// TestReceiver_UnicastLoopbackDelivers sends one datagram to a
// ModeTesting unicast receiver and checks it is handed to Handler with
// the right bytes and a nonzero receive timestamp.
func TestReceiver_UnicastLoopbackDelivers(t *testing.T) {
	addr := freeLoopbackAddr(t)
	r := NewReceiver(Config{Address: addr, Mode: ModeTesting, ReadTimeout: 20 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Run(ctx, func(payload []byte, recvNs uint64) {
			cp := append([]byte(nil), payload...)
			assert.NotZero(t, recvNs)
			select {
			case received <- cp:
			default:
			}
		})
	}()

	// Give Run a moment to bind before sending.
	time.Sleep(30 * time.Millisecond)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}

	cancel()
	wg.Wait()
}

func TestReceiver_StatsCountPacketsAndBytes(t *testing.T) {
	addr := freeLoopbackAddr(t)
	r := NewReceiver(Config{Address: addr, Mode: ModeTesting, ReadTimeout: 20 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, func(payload []byte, recvNs uint64) {})
	}()
	time.Sleep(30 * time.Millisecond)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("abc"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.Stats().PacketsReceived == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(3), r.Stats().BytesReceived)

	cancel()
	<-done
}

func TestReceiver_ContextCancelStopsRun(t *testing.T) {
	addr := freeLoopbackAddr(t)
	r := NewReceiver(Config{Address: addr, Mode: ModeTesting, ReadTimeout: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, func(payload []byte, recvNs uint64) {})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestReceiver_BindFailureOnInvalidAddress(t *testing.T) {
	r := NewReceiver(Config{Address: "not-an-address", Mode: ModeTesting}, nil)
	err := r.Run(context.Background(), func(payload []byte, recvNs uint64) {})
	require.Error(t, err)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, 64*1024, cfg.MaxDatagramSize)
	assert.Equal(t, 10*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 3*time.Second, cfg.MaxBackoff)
}

func TestReceiver_TableDrivenModeSelection(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		mode Mode
	}{
		{"testing mode kept for multicast-range address", "239.1.1.1", ModeTesting},
		{"normal mode kept for unicast loopback address", "127.0.0.1", ModeNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := net.JoinHostPort(tt.ip, strconv.Itoa(0))
			r := NewReceiver(Config{Address: addr, Mode: tt.mode}, nil)
			assert.Equal(t, tt.mode, r.cfg.Mode)
		})
	}
}
