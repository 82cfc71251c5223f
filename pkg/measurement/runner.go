package measurement

import (
	"context"
	"fmt"
	"time"

	"speedtest-mqtt/pkg/iperf"
	"speedtest-mqtt/pkg/models"
)

// Client is the throughput measurement capability, implemented by iperf.Client
type Client interface {
	Run(ctx context.Context, opts iperf.Options) (*iperf.Result, error)
}

// MeasurementError describes a failed attempt against host:port
type MeasurementError struct {
	Direction models.Direction
	Host      string
	Port      int
	Detail    string
	Err       error
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("%s measurement against %s:%d failed: %s", e.Direction, e.Host, e.Port, e.Detail)
}

func (e *MeasurementError) Unwrap() error {
	return e.Err
}

type Runner struct {
	client   Client
	duration time.Duration
}

// NewRunner returns a Runner using client. duration is passed through as the
// iperf3 test length, 0 keeps the client default.
func NewRunner(client Client, duration time.Duration) *Runner {
	return &Runner{
		client:   client,
		duration: duration,
	}
}

// RunOnce performs exactly one measurement in the given direction. Download
// runs in reverse mode so the server sends. Failures are always returned as
// a *MeasurementError.
func (r *Runner) RunOnce(ctx context.Context, direction models.Direction, endpoint models.ServerEndpoint, port int) (float64, error) {
	opts := iperf.Options{
		Host:     endpoint.Host,
		Port:     port,
		Reverse:  direction == models.Download,
		ZeroCopy: true,
		Verbose:  false,
		Duration: r.duration,
	}

	fail := func(detail string, err error) (float64, error) {
		return 0, &MeasurementError{
			Direction: direction,
			Host:      endpoint.Host,
			Port:      port,
			Detail:    detail,
			Err:       err,
		}
	}

	result, err := r.client.Run(ctx, opts)
	if err != nil {
		return fail(err.Error(), err)
	}
	if result == nil {
		return fail("no result", nil)
	}
	if result.Error != "" {
		return fail(result.Error, nil)
	}

	metric := result.SentBps
	if direction == models.Download {
		metric = result.ReceivedBps
	}
	if metric == nil {
		return fail(fmt.Sprintf("result has no %s rate", direction), nil)
	}

	return *metric, nil
}
