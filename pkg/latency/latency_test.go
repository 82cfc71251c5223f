package latency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	probing "github.com/prometheus-community/pro-bing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedtest-mqtt/pkg/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRTTMillis(t *testing.T) {
	_, err := rttMillis(nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = rttMillis(&probing.Statistics{PacketsSent: 3, PacketsRecv: 0})
	assert.ErrorIs(t, err, ErrUnavailable)

	ms, err := rttMillis(&probing.Statistics{PacketsSent: 1, PacketsRecv: 1, AvgRtt: 12300 * time.Microsecond})
	require.NoError(t, err)
	assert.InDelta(t, 12.3, ms, 1e-9)
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p, err := NewTCPProber("", port, time.Second, discardLogger())
	require.NoError(t, err)

	ms, err := p.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, 0.0)
}

type closeFailConn struct {
	transport.StreamConn
}

func (closeFailConn) Close() error {
	return errors.New("connection reset")
}

type stubDialer struct {
	conn transport.StreamConn
}

func (d stubDialer) DialStream(ctx context.Context, raddr string) (transport.StreamConn, error) {
	return d.conn, nil
}

func TestTCPProberLogsCloseError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := &TCPProber{
		dialer:  stubDialer{conn: closeFailConn{}},
		port:    "5201",
		timeout: time.Second,
		logger:  logger,
	}

	ms, err := p.Probe(context.Background(), "iperf.example.net")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, 0.0)
	assert.Contains(t, buf.String(), "Closing connection failed")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestTCPProberUnavailable(t *testing.T) {
	// grab a free port, then close it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port, _ := strconv.Atoi(portStr)

	p, err := NewTCPProber("", port, time.Second, discardLogger())
	require.NoError(t, err)

	_, err = p.Probe(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNew(t *testing.T) {
	p, err := New(config.LatencyConfig{Method: "icmp", Count: 2}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &ICMPProber{}, p)

	p, err = New(config.LatencyConfig{Method: "tcp", Port: 5201}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &TCPProber{}, p)

	_, err = New(config.LatencyConfig{Method: "udp"}, discardLogger())
	assert.Error(t, err)

	_, err = New(config.LatencyConfig{Method: "tcp", Transport: "bogus://x"}, discardLogger())
	assert.Error(t, err)
}
