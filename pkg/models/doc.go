/*
Package models defines the data types shared by the speedtest agent: the
servers it measures against, the outcome of a single measurement attempt and
the values produced by a full cycle.

Core Types:

Direction selects which way data flows during a throughput test:

	type Direction string
	const (
		Download Direction = "download" // server sends, iperf3 reverse mode
		Upload   Direction = "upload"   // this host sends
	)

ServerEndpoint is one entry of the configured server pool:

	type ServerEndpoint struct {
		Host  string // iperf3 server hostname or IP
		Ports []int  // candidate ports, one is picked per attempt
	}

MeasurementOutcome describes a single attempt:

	type MeasurementOutcome struct {
		Direction     Direction
		Host          string
		Port          int
		BitsPerSecond float64 // valid only when Succeeded
		Succeeded     bool
		ErrorDetail   string  // empty on success
	}

CycleResult is what gets published once per cycle:

	type CycleResult struct {
		DownloadBps float64 // bits per second
		UploadBps   float64 // bits per second
		LatencyMs   float64 // 0 when the probe failed
	}

Lifetime:

ServerEndpoint values are loaded once with the configuration and never
modified. MeasurementOutcome and CycleResult are created for a single cycle
and discarded after publishing.
*/
package models
