package models

import (
	"net"
	"strconv"
)

// Direction is the direction of a throughput measurement, seen from this host.
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

func (d Direction) String() string {
	return string(d)
}

// ServerEndpoint is a measurement server offering one or more candidate ports.
type ServerEndpoint struct {
	Host  string `mapstructure:"host"`
	Ports []int  `mapstructure:"ports"`
}

// Address joins the endpoint host with the given port.
func (e ServerEndpoint) Address(port int) string {
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// MeasurementOutcome is the result of a single measurement attempt.
type MeasurementOutcome struct {
	Direction     Direction
	Host          string
	Port          int
	BitsPerSecond float64
	Succeeded     bool
	ErrorDetail   string
}

// Address is the host:port the attempt ran against.
func (o MeasurementOutcome) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// CycleResult holds the values published at the end of a cycle.
type CycleResult struct {
	DownloadBps float64
	UploadBps   float64
	LatencyMs   float64
}
