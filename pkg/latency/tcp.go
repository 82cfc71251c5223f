package latency

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

// TCPProber reports the time taken to open a TCP connection to host:port.
// Connections go through a transport built from a config URL, so the probe
// can run where ICMP is filtered or must traverse a proxy.
type TCPProber struct {
	dialer  transport.StreamDialer
	port    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewTCPProber returns a prober dialing through transportConfig. An empty
// config dials directly.
func NewTCPProber(transportConfig string, port int, timeout time.Duration, logger *slog.Logger) (*TCPProber, error) {
	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(transportConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TCPProber{
		dialer:  dialer,
		port:    strconv.Itoa(port),
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (p *TCPProber) Probe(ctx context.Context, host string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(host, p.port)
	start := time.Now()
	conn, err := p.dialer.DialStream(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("%w: connect to %s: %v", ErrUnavailable, addr, err)
	}
	delay := float64(time.Since(start).Microseconds()) / 1000.0
	if err := conn.Close(); err != nil {
		p.logger.Debug("Closing connection failed", "addr", addr, "error", err)
	}

	p.logger.Debug("TCP probe completed", "addr", addr, "rttMs", delay)
	return delay, nil
}
