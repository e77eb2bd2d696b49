package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/statesync/internal/core/observability/log"
	"github.com/zeusync/statesync/internal/core/schema/registry"
	"github.com/zeusync/statesync/internal/core/simulation/messages"
	"github.com/zeusync/statesync/internal/core/simulation/stepper"
)

var ErrInvalid = errors.New("invalid config")

// Transport names accepted by NetworkConfig.
const (
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

// Config is the root of a statesync deployment file.
type Config struct {
	Simulation  messages.Settings `json:"simulation" yaml:"simulation"`
	Stepper     stepper.Config    `json:"stepper" yaml:"stepper"`
	Replication ReplicationConfig `json:"replication" yaml:"replication"`
	Network     NetworkConfig     `json:"network" yaml:"network"`
	Log         LogConfig         `json:"log" yaml:"log"`
}

// ReplicationConfig lists the component categories a client owns. Values of
// these categories are never sent back to the owning client.
type ReplicationConfig struct {
	OwnerEcho []string `json:"owner_echo" yaml:"owner_echo"`
}

type NetworkConfig struct {
	Transport   string        `json:"transport" yaml:"transport"`
	Address     string        `json:"address" yaml:"address"`
	Path        string        `json:"path,omitempty" yaml:"path,omitempty"`
	PublishRate time.Duration `json:"publish_rate" yaml:"publish_rate"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

func Default() Config {
	return Config{
		Simulation: messages.DefaultSettings(),
		Stepper:    stepper.DefaultConfig(),
		Replication: ReplicationConfig{
			OwnerEcho: []string{"input", "action_history"},
		},
		Network: NetworkConfig{
			Transport:   TransportWebSocket,
			Address:     "127.0.0.1:7070",
			Path:        "/sync",
			PublishRate: 50 * time.Millisecond,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Parse decodes YAML over the defaults, so a file only needs the keys it
// changes.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func (c Config) Validate() error {
	var errs []error
	if c.Simulation.FixedDt <= 0 {
		errs = append(errs, fmt.Errorf("simulation.fixed_dt must be positive, got %v", c.Simulation.FixedDt))
	}
	if c.Simulation.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("simulation.max_steps must be at least 1, got %d", c.Simulation.MaxSteps))
	}
	if c.Stepper.MainQueue == "" || c.Stepper.WorkerQueue == "" {
		errs = append(errs, errors.New("stepper queue names are required"))
	} else if c.Stepper.MainQueue == c.Stepper.WorkerQueue {
		errs = append(errs, errors.New("stepper queues must differ"))
	}
	if c.Stepper.Delay.Window < 1 {
		errs = append(errs, fmt.Errorf("stepper.delay.window must be at least 1, got %d", c.Stepper.Delay.Window))
	}
	if _, err := c.OwnerEcho(); err != nil {
		errs = append(errs, err)
	}
	switch c.Network.Transport {
	case TransportWebSocket, TransportQUIC:
	default:
		errs = append(errs, fmt.Errorf("unknown network.transport %q", c.Network.Transport))
	}
	if c.Network.Transport == TransportWebSocket && !strings.HasPrefix(c.Network.Path, "/") {
		errs = append(errs, fmt.Errorf("network.path must start with /, got %q", c.Network.Path))
	}
	if c.Network.PublishRate <= 0 {
		errs = append(errs, errors.New("network.publish_rate must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// OwnerEcho resolves the configured owner-echo category names.
func (c Config) OwnerEcho() (registry.Category, error) {
	return registry.ParseCategories(c.Replication.OwnerEcho)
}

func (c Config) LogLevel() log.Level {
	return log.ParseLevel(c.Log.Level)
}
