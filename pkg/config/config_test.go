package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedtest-mqtt/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)

	assert.True(t, cfg.Defaulted)
	assert.Error(t, cfg.LoadError)
	assert.Equal(t, 90*time.Minute, cfg.Interval)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, []int{5200, 5201, 5202}, cfg.Servers[0].Ports)
	assert.Equal(t, "127.0.0.1", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Empty(t, cfg.MQTT.Username)
	assert.Empty(t, cfg.MQTT.Password)
	assert.NotEmpty(t, cfg.MQTT.ClientID)
}

func TestLoadUnparsableFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "interval: [unclosed\n  hosts: {")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Defaulted)
	assert.Len(t, cfg.Servers, 1)
	assert.Equal(t, DefaultInterval, cfg.Interval)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
interval: 30m
hosts:
  - host: iperf.example.net
    ports: [5200, 5201]
  - host: iperf2.example.net
    ports: [5202]
mqtt:
  host: broker.local
  port: "1884"
  username: user
  password: secret
  topic: home/speedtest
  client_id: agent-1
  qos: 1
latency:
  method: tcp
  port: 5200
  timeout: 2s
iperf:
  binary: /usr/local/bin/iperf3
  duration: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Defaulted)
	assert.Equal(t, 30*time.Minute, cfg.Interval)
	assert.Equal(t, []models.ServerEndpoint{
		{Host: "iperf.example.net", Ports: []int{5200, 5201}},
		{Host: "iperf2.example.net", Ports: []int{5202}},
	}, cfg.Servers)
	assert.Equal(t, BrokerConfig{
		Host:     "broker.local",
		Port:     1884,
		Username: "user",
		Password: "secret",
		Topic:    "home/speedtest",
		ClientID: "agent-1",
		QoS:      1,
	}, cfg.MQTT)
	assert.Equal(t, "tcp", cfg.Latency.Method)
	assert.Equal(t, 5200, cfg.Latency.Port)
	assert.Equal(t, 2*time.Second, cfg.Latency.Timeout)
	assert.Equal(t, "/usr/local/bin/iperf3", cfg.Iperf.Binary)
	assert.Equal(t, 5*time.Second, cfg.Iperf.Duration)
	assert.Equal(t, 60*time.Second, cfg.Iperf.Timeout)
}

func TestLoadMQTTDefaults(t *testing.T) {
	path := writeConfig(t, `
interval: 90m
servers:
  - host: iperf.example.net
    ports: [5201]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "127.0.0.1", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "speedtest", cfg.MQTT.Topic)
	assert.Equal(t, "icmp", cfg.Latency.Method)
}

func TestLoadMissingIntervalInFile(t *testing.T) {
	path := writeConfig(t, `
hosts:
  - host: iperf.example.net
    ports: [5201]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Minute, cfg.Interval)
}

func TestLoadInvalidInterval(t *testing.T) {
	path := writeConfig(t, `
interval: notaduration
hosts:
  - host: iperf.example.net
    ports: [5201]
`)

	cfg, err := Load(path)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestLoadInvalidServers(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name:    "no servers",
			body:    "interval: 10m\n",
			wantErr: ErrNoServers,
		},
		{
			name:    "empty host",
			body:    "hosts:\n  - host: \"\"\n    ports: [5201]\n",
			wantErr: ErrInvalidServer,
		},
		{
			name:    "no ports",
			body:    "hosts:\n  - host: iperf.example.net\n",
			wantErr: ErrInvalidServer,
		},
		{
			name:    "port out of range",
			body:    "hosts:\n  - host: iperf.example.net\n    ports: [70000]\n",
			wantErr: ErrInvalidServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadInvalidBroker(t *testing.T) {
	path := writeConfig(t, `
hosts:
  - host: iperf.example.net
    ports: [5201]
mqtt:
  qos: 3
`)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidBroker)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPEEDTEST_MQTT_PASSWORD", "from-env")
	t.Setenv("SPEEDTEST_MQTT_HOST", "broker.env")

	path := writeConfig(t, `
hosts:
  - host: iperf.example.net
    ports: [5201]
mqtt:
  host: broker.file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MQTT.Password)
	assert.Equal(t, "broker.env", cfg.MQTT.Host)
}

func TestLoadMissingFileInvalidEnv(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"qos", "SPEEDTEST_MQTT_QOS", "7"},
		{"port", "SPEEDTEST_MQTT_PORT", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
			assert.ErrorIs(t, err, ErrInvalidBroker)
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "90m", want: 90 * time.Minute},
		{in: "1h30m", want: 90 * time.Minute},
		{in: " 45s ", want: 45 * time.Second},
		{in: "3600", want: time.Hour},
		{in: "notaduration", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-5m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
