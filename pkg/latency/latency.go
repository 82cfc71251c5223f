// Package latency measures round-trip latency to measurement servers.
package latency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"speedtest-mqtt/pkg/config"
)

// ErrUnavailable is returned when a probe got no answer
var ErrUnavailable = errors.New("latency unavailable")

// Prober returns the round-trip time to host in milliseconds
type Prober interface {
	Probe(ctx context.Context, host string) (float64, error)
}

// New builds the prober selected by cfg.Method
func New(cfg config.LatencyConfig, logger *slog.Logger) (Prober, error) {
	switch cfg.Method {
	case "", "icmp":
		return NewICMPProber(cfg.Count, cfg.Timeout, cfg.Privileged, logger), nil
	case "tcp":
		return NewTCPProber(cfg.Transport, cfg.Port, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unsupported latency method: %s", cfg.Method)
	}
}
