package measurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"speedtest-mqtt/pkg/models"
)

const (
	backoffStep = 5 * time.Second
	backoffMin  = 5 * time.Second
	backoffMax  = 60 * time.Second
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the wait after the given failed attempt: attempt*5s,
// clamped to [5s, 60s].
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return backoffMin
	}
	// cap before multiplying so huge attempt counts cannot overflow
	if attempt > int(backoffMax/backoffStep) {
		return backoffMax
	}
	d := time.Duration(attempt) * backoffStep
	if d < backoffMin {
		return backoffMin
	}
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// AttemptRunner runs a single measurement, implemented by *Runner
type AttemptRunner interface {
	RunOnce(ctx context.Context, direction models.Direction, endpoint models.ServerEndpoint, port int) (float64, error)
}

// ServerSelector is implemented by *selector.Selector
type ServerSelector interface {
	Pick(servers []models.ServerEndpoint) (models.ServerEndpoint, int, error)
	PickHost(servers []models.ServerEndpoint) (string, error)
}

// Reporter receives the outcome of every attempt. Failures arrive before
// the scheduler backs off.
type Reporter interface {
	MeasurementSucceeded(outcome models.MeasurementOutcome, attempts int)
	MeasurementFailed(outcome models.MeasurementOutcome, attempt int, backoff time.Duration)
}

// Reporters fans outcomes out to several reporters
type Reporters []Reporter

func (rs Reporters) MeasurementSucceeded(outcome models.MeasurementOutcome, attempts int) {
	for _, r := range rs {
		r.MeasurementSucceeded(outcome, attempts)
	}
}

func (rs Reporters) MeasurementFailed(outcome models.MeasurementOutcome, attempt int, backoff time.Duration) {
	for _, r := range rs {
		r.MeasurementFailed(outcome, attempt, backoff)
	}
}

// LogReporter logs attempt outcomes
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) MeasurementSucceeded(outcome models.MeasurementOutcome, attempts int) {
	r.Logger.Debug("Measurement succeeded",
		"direction", outcome.Direction,
		"attempts", attempts,
		"addr", outcome.Address(),
		"bps", outcome.BitsPerSecond)
}

func (r LogReporter) MeasurementFailed(outcome models.MeasurementOutcome, attempt int, backoff time.Duration) {
	r.Logger.Warn("Measurement attempt failed",
		"direction", outcome.Direction,
		"attempt", attempt,
		"addr", outcome.Address(),
		"error", outcome.ErrorDetail,
		"backoff", backoff)
}

type Scheduler struct {
	runner   AttemptRunner
	selector ServerSelector
	reporter Reporter
	sleep    SleepFunc
	logger   *slog.Logger
}

// NewScheduler wires a retry scheduler. A nil sleep uses Sleep.
func NewScheduler(runner AttemptRunner, selector ServerSelector, reporter Reporter, sleep SleepFunc, logger *slog.Logger) *Scheduler {
	if sleep == nil {
		sleep = Sleep
	}
	if reporter == nil {
		reporter = LogReporter{Logger: logger}
	}
	return &Scheduler{
		runner:   runner,
		selector: selector,
		reporter: reporter,
		sleep:    sleep,
		logger:   logger,
	}
}

// RunWithRetry measures in the given direction until an attempt succeeds.
// Every attempt picks a fresh server and port. There is no attempt limit:
// the only errors are an unusable server pool and ctx being done.
func (s *Scheduler) RunWithRetry(ctx context.Context, direction models.Direction, servers []models.ServerEndpoint) (float64, error) {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		server, port, err := s.selector.Pick(servers)
		if err != nil {
			return 0, err
		}

		s.logger.Debug("Running measurement",
			"direction", direction,
			"addr", server.Address(port),
			"attempt", attempt+1)

		bps, err := s.runner.RunOnce(ctx, direction, server, port)
		if err == nil {
			s.reporter.MeasurementSucceeded(models.MeasurementOutcome{
				Direction:     direction,
				Host:          server.Host,
				Port:          port,
				BitsPerSecond: bps,
				Succeeded:     true,
			}, attempt+1)
			return bps, nil
		}

		// a cancelled run is shutdown, not a flaky server
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}

		attempt++
		backoff := Backoff(attempt)
		outcome := models.MeasurementOutcome{
			Direction:   direction,
			Host:        server.Host,
			Port:        port,
			Succeeded:   false,
			ErrorDetail: detailOf(err),
		}
		s.reporter.MeasurementFailed(outcome, attempt, backoff)

		if err := s.sleep(ctx, backoff); err != nil {
			return 0, err
		}
	}
}

func detailOf(err error) string {
	var merr *MeasurementError
	if errors.As(err, &merr) {
		return merr.Detail
	}
	return err.Error()
}
