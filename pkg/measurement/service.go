package measurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"speedtest-mqtt/pkg/models"
)

// ErrPublish wraps every error returned by the Publisher
var ErrPublish = errors.New("failed to publish results")

// Prober measures round-trip latency to a host in milliseconds
type Prober interface {
	Probe(ctx context.Context, host string) (float64, error)
}

// Publisher delivers a finished cycle to the broker
type Publisher interface {
	Publish(ctx context.Context, result models.CycleResult) error
}

// Recorder observes completed cycles and publish failures
type Recorder interface {
	CycleCompleted(result models.CycleResult)
	PublishFailed()
}

type nopRecorder struct{}

func (nopRecorder) CycleCompleted(models.CycleResult) {}
func (nopRecorder) PublishFailed()                    {}

// Deps are the collaborators of a MeasurementService. Reporter, Recorder and
// Sleep are optional.
type Deps struct {
	Runner    AttemptRunner
	Selector  ServerSelector
	Prober    Prober
	Publisher Publisher
	Reporter  Reporter
	Recorder  Recorder
	Sleep     SleepFunc
}

type MeasurementService struct {
	servers   []models.ServerEndpoint
	interval  time.Duration
	scheduler *Scheduler
	selector  ServerSelector
	prober    Prober
	publisher Publisher
	recorder  Recorder
	sleep     SleepFunc
	logger    *slog.Logger
}

func NewMeasurementService(servers []models.ServerEndpoint, interval time.Duration, deps Deps, logger *slog.Logger) *MeasurementService {
	if deps.Sleep == nil {
		deps.Sleep = Sleep
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	return &MeasurementService{
		servers:   servers,
		interval:  interval,
		scheduler: NewScheduler(deps.Runner, deps.Selector, deps.Reporter, deps.Sleep, logger),
		selector:  deps.Selector,
		prober:    deps.Prober,
		publisher: deps.Publisher,
		recorder:  deps.Recorder,
		sleep:     deps.Sleep,
		logger:    logger,
	}
}

// RunCycle measures download, then upload, then latency. Latency is best
// effort: a failed probe yields 0. The only error is ctx being done or an
// unusable server pool.
func (s *MeasurementService) RunCycle(ctx context.Context) (models.CycleResult, error) {
	var result models.CycleResult

	s.logger.Info("Running download measurement")
	down, err := s.scheduler.RunWithRetry(ctx, models.Download, s.servers)
	if err != nil {
		return result, fmt.Errorf("download measurement: %w", err)
	}
	result.DownloadBps = down

	s.logger.Info("Running upload measurement")
	up, err := s.scheduler.RunWithRetry(ctx, models.Upload, s.servers)
	if err != nil {
		return result, fmt.Errorf("upload measurement: %w", err)
	}
	result.UploadBps = up

	result.LatencyMs = s.probeLatency(ctx)

	return result, nil
}

func (s *MeasurementService) probeLatency(ctx context.Context) float64 {
	host, err := s.selector.PickHost(s.servers)
	if err != nil {
		s.logger.Debug("No host for latency probe", "error", err)
		return 0
	}

	ms, err := s.prober.Probe(ctx, host)
	if err != nil {
		s.logger.Debug("Latency probe failed", "host", host, "error", err)
		return 0
	}
	return ms
}

// RunOnce runs a single cycle and publishes its result. Publish errors are
// returned to the caller.
func (s *MeasurementService) RunOnce(ctx context.Context) error {
	result, err := s.RunCycle(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("Cycle completed",
		"down", fmt.Sprintf("%f", result.DownloadBps),
		"up", fmt.Sprintf("%f", result.UploadBps),
		"ping", fmt.Sprintf("%f", result.LatencyMs))
	s.recorder.CycleCompleted(result)

	if err := s.publisher.Publish(ctx, result); err != nil {
		s.recorder.PublishFailed()
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	return nil
}

// RunMeasurements repeats cycles every interval until ctx is done. A failed
// publish is logged and the cycle's values are dropped; the next cycle runs
// on schedule.
func (s *MeasurementService) RunMeasurements(ctx context.Context) error {
	s.logger.Info("Starting measurements",
		"serverCount", len(s.servers),
		"interval", s.interval)

	for {
		err := s.RunOnce(ctx)
		if ctx.Err() != nil {
			s.logger.Info("Stopping measurements", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			if !errors.Is(err, ErrPublish) {
				return err
			}
			s.logger.Error("Skipping publish for this cycle", "error", err)
		}

		s.logger.Debug("Waiting for next cycle", "interval", s.interval)
		if err := s.sleep(ctx, s.interval); err != nil {
			s.logger.Info("Stopping measurements", "reason", err)
			return nil
		}
	}
}
