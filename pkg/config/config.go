package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"speedtest-mqtt/pkg/models"
)

const (
	DefaultPath     = "/config.yml"
	DefaultInterval = 90 * time.Minute
	// fallback when a config file is present but has no interval key
	fileInterval = 60 * time.Minute

	DefaultBrokerHost = "127.0.0.1"
	DefaultBrokerPort = 1883
	DefaultTopic      = "speedtest"
)

var (
	ErrInvalidInterval = errors.New("invalid interval")
	ErrNoServers       = errors.New("no servers configured")
	ErrInvalidServer   = errors.New("invalid server entry")
	ErrInvalidBroker   = errors.New("invalid mqtt settings")
)

// BrokerConfig holds the MQTT connection settings and the topic prefix
type BrokerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	QoS      int    `mapstructure:"qos"`
}

// LatencyConfig selects and tunes the latency probe
type LatencyConfig struct {
	Method     string        `mapstructure:"method"` // icmp or tcp
	Timeout    time.Duration `mapstructure:"timeout"`
	Count      int           `mapstructure:"count"`
	Privileged bool          `mapstructure:"privileged"`
	Port       int           `mapstructure:"port"`      // tcp only
	Transport  string        `mapstructure:"transport"` // tcp only, empty dials directly
}

// IperfConfig controls how the iperf3 client is invoked
type IperfConfig struct {
	Binary   string        `mapstructure:"binary"`
	Duration time.Duration `mapstructure:"duration"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Interval time.Duration
	Servers  []models.ServerEndpoint
	MQTT     BrokerConfig
	Latency  LatencyConfig
	Iperf    IperfConfig

	// Defaulted is set when the config file could not be read and the
	// built-in server pool and interval were used instead.
	Defaulted bool
	LoadError error
}

// fileConfig mirrors the YAML document
type fileConfig struct {
	Interval string                  `mapstructure:"interval"`
	Hosts    []models.ServerEndpoint `mapstructure:"hosts"`
	Servers  []models.ServerEndpoint `mapstructure:"servers"`
	MQTT     BrokerConfig            `mapstructure:"mqtt"`
	Latency  LatencyConfig           `mapstructure:"latency"`
	Iperf    IperfConfig             `mapstructure:"iperf"`
}

func defaultServers() []models.ServerEndpoint {
	return []models.ServerEndpoint{
		{Host: "ping.online.net", Ports: []int{5200, 5201, 5202}},
	}
}

// Default returns the configuration used when no config file is available.
func Default() *Config {
	v := newViper("")
	cfg := &Config{
		Interval: DefaultInterval,
		Servers:  defaultServers(),
	}
	var fc fileConfig
	// only defaults are set, decoding cannot fail
	_ = v.Unmarshal(&fc)
	cfg.MQTT = fc.MQTT
	cfg.Latency = fc.Latency
	cfg.Iperf = fc.Iperf
	cfg.MQTT.ClientID = clientID(cfg.MQTT.ClientID)
	return cfg
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("speedtest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mqtt.host", DefaultBrokerHost)
	v.SetDefault("mqtt.port", DefaultBrokerPort)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", DefaultTopic)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("latency.method", "icmp")
	v.SetDefault("latency.timeout", 5*time.Second)
	v.SetDefault("latency.count", 1)
	v.SetDefault("latency.privileged", false)
	v.SetDefault("latency.port", 5201)
	v.SetDefault("latency.transport", "")

	v.SetDefault("iperf.binary", "iperf3")
	v.SetDefault("iperf.duration", 10*time.Second)
	v.SetDefault("iperf.timeout", 60*time.Second)
	return v
}

// Load reads the YAML config at path. A missing or unparsable file is not an
// error: the built-in defaults are returned with Defaulted set. Invalid
// values in a readable file or in the environment are.
func Load(path string) (*Config, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		cfg := Default()
		var fc fileConfig
		if uerr := v.Unmarshal(&fc); uerr == nil {
			// environment overrides still apply
			cfg.MQTT = fc.MQTT
			cfg.MQTT.ClientID = clientID(cfg.MQTT.ClientID)
		}
		cfg.Defaulted = true
		cfg.LoadError = err
		if verr := cfg.validate(); verr != nil {
			return nil, verr
		}
		return cfg, nil
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	interval := fileInterval
	if strings.TrimSpace(fc.Interval) != "" {
		d, err := ParseInterval(fc.Interval)
		if err != nil {
			return nil, err
		}
		interval = d
	}

	servers := fc.Hosts
	if len(servers) == 0 {
		servers = fc.Servers
	}
	if err := validateServers(servers); err != nil {
		return nil, err
	}

	cfg := &Config{
		Interval: interval,
		Servers:  servers,
		MQTT:     fc.MQTT,
		Latency:  fc.Latency,
		Iperf:    fc.Iperf,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.MQTT.ClientID = clientID(cfg.MQTT.ClientID)

	return cfg, nil
}

// ParseInterval accepts Go duration strings such as "90m" or "1h30m" and bare
// numbers, which are taken as seconds.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidInterval, s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidInterval, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidInterval, s)
	}
	return d, nil
}

func validateServers(servers []models.ServerEndpoint) error {
	if len(servers) == 0 {
		return ErrNoServers
	}
	for i, s := range servers {
		if strings.TrimSpace(s.Host) == "" {
			return fmt.Errorf("%w: entry %d has no host", ErrInvalidServer, i)
		}
		if len(s.Ports) == 0 {
			return fmt.Errorf("%w: %s has no ports", ErrInvalidServer, s.Host)
		}
		for _, p := range s.Ports {
			if p < 1 || p > 65535 {
				return fmt.Errorf("%w: %s has port %d out of range", ErrInvalidServer, s.Host, p)
			}
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidBroker, c.MQTT.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: qos must be 0, 1 or 2, got %d", ErrInvalidBroker, c.MQTT.QoS)
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidBroker)
	}
	switch c.Latency.Method {
	case "icmp", "tcp":
	default:
		return fmt.Errorf("invalid latency method %q: must be 'icmp' or 'tcp'", c.Latency.Method)
	}
	return nil
}

func clientID(id string) string {
	if id != "" {
		return id
	}
	return "speedtest-" + uuid.NewString()[:8]
}
