package latency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ICMPProber sends echo requests and reports the average round-trip time
type ICMPProber struct {
	count      int
	timeout    time.Duration
	privileged bool
	logger     *slog.Logger
}

func NewICMPProber(count int, timeout time.Duration, privileged bool, logger *slog.Logger) *ICMPProber {
	if count < 1 {
		count = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ICMPProber{
		count:      count,
		timeout:    timeout,
		privileged: privileged,
		logger:     logger,
	}
}

func (p *ICMPProber) Probe(ctx context.Context, host string) (float64, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, fmt.Errorf("failed to create pinger for %s: %w", host, err)
	}
	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("ping %s: %w", host, err)
	}

	ms, err := rttMillis(pinger.Statistics())
	if err != nil {
		return 0, fmt.Errorf("ping %s: %w", host, err)
	}

	p.logger.Debug("ICMP probe completed", "host", host, "rttMs", ms)
	return ms, nil
}

func rttMillis(stats *probing.Statistics) (float64, error) {
	if stats == nil || stats.PacketsRecv == 0 {
		return 0, ErrUnavailable
	}
	return float64(stats.AvgRtt.Microseconds()) / 1000.0, nil
}
