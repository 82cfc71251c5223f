// Package iperf runs the iperf3 client binary and parses its JSON report.
package iperf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// Options for a single client run
type Options struct {
	Host     string
	Port     int
	Reverse  bool // server sends, client receives
	ZeroCopy bool
	Verbose  bool
	Duration time.Duration // 0 leaves the iperf3 default
}

// Result carries the summary of a run. A nil rate means the report did not
// contain it.
type Result struct {
	SentBps     *float64
	ReceivedBps *float64
	Error       string
}

type report struct {
	Error string `json:"error"`
	End   struct {
		SumSent     *summary `json:"sum_sent"`
		SumReceived *summary `json:"sum_received"`
	} `json:"end"`
}

type summary struct {
	BitsPerSecond *float64 `json:"bits_per_second"`
}

type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

type Client struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
	run     commandFunc
}

// NewClient returns a client invoking binary, killing any run that takes
// longer than timeout. A zero timeout means no limit.
func NewClient(binary string, timeout time.Duration, logger *slog.Logger) *Client {
	if binary == "" {
		binary = "iperf3"
	}
	return &Client{
		binary:  binary,
		timeout: timeout,
		logger:  logger,
		run:     runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		err = fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out, err
}

// Args builds the iperf3 command line for opts.
func Args(opts Options) []string {
	args := []string{"-c", opts.Host, "-p", strconv.Itoa(opts.Port), "-J"}
	if opts.Duration > 0 {
		secs := int(opts.Duration.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = append(args, "-t", strconv.Itoa(secs))
	}
	if opts.Reverse {
		args = append(args, "-R")
	}
	if opts.ZeroCopy {
		args = append(args, "-Z")
	}
	if opts.Verbose {
		args = append(args, "-V")
	}
	return args
}

// Run performs one measurement. iperf3 exits non-zero when the test fails but
// still prints a JSON report with the error, so the report is preferred over
// the exit status whenever it can be parsed.
func (c *Client) Run(ctx context.Context, opts Options) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := Args(opts)
	c.logger.Debug("Running iperf3", "binary", c.binary, "args", args)

	out, runErr := c.run(ctx, c.binary, args...)
	if len(bytes.TrimSpace(out)) > 0 {
		result, err := Parse(out)
		if err == nil {
			return result, nil
		}
		if runErr == nil {
			return nil, err
		}
	}
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("iperf3 timed out after %s: %w", c.timeout, runErr)
		}
		return nil, fmt.Errorf("iperf3 failed: %w", runErr)
	}
	return nil, nil
}

// Parse decodes an iperf3 JSON report.
func Parse(data []byte) (*Result, error) {
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse iperf3 report: %w", err)
	}

	result := &Result{Error: r.Error}
	if r.End.SumSent != nil {
		result.SentBps = r.End.SumSent.BitsPerSecond
	}
	if r.End.SumReceived != nil {
		result.ReceivedBps = r.End.SumReceived.BitsPerSecond
	}
	return result, nil
}
