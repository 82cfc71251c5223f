/*
Package measurement runs the speedtest cycle: throughput measurements with
retry, a best-effort latency probe and the publish of the results.

Key Components:

  - Runner: performs exactly one iperf3 measurement and turns every failure into a *MeasurementError
  - Scheduler: retries the Runner with linear backoff until a measurement succeeds
  - MeasurementService: runs cycles (download, upload, latency, publish) on a fixed interval

Backoff:

After the n-th failed attempt the scheduler waits Backoff(n), which is n*5s
clamped to [5s, 60s]:

	attempt  1  2  3 ... 11 12 13 ...
	wait(s)  5 10 15 ... 55 60 60 ...

There is no attempt limit. A stale but eventually correct value is preferred
over a missing one, so the scheduler only gives up when its context is done.

Usage Example:

	runner := measurement.NewRunner(iperf.NewClient("iperf3", time.Minute, logger), 10*time.Second)

	svc := measurement.NewMeasurementService(cfg.Servers, cfg.Interval, measurement.Deps{
		Runner:    runner,
		Selector:  selector.New(nil),
		Prober:    prober,
		Publisher: pub,
	}, logger)

	// blocks until ctx is cancelled
	err := svc.RunMeasurements(ctx)

Testing:

Sleep is injectable through Deps.Sleep, so tests can record backoff waits
instead of sleeping.
*/
package measurement
