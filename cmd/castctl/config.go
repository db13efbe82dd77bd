package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"sutext.github.io/cast/backoff"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/xlog"
)

type device struct {
	Name            string        `yaml:"name"`
	Endpoint        string        `yaml:"endpoint"`
	Capabilities    []string      `yaml:"capabilities"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout"`
	LivenessTimeout time.Duration `yaml:"livenessTimeout"`
	PingInterval    time.Duration `yaml:"pingInterval"`

	openParams channel.OpenParams
}
type message struct {
	Namespace   string `yaml:"namespace"`
	Destination string `yaml:"destination"`
	Payload     string `yaml:"payload"`
}
type retryConfig struct {
	Limit int64 `yaml:"limit"`
	// Strategy is one of exponential (default), linear, constant, random.
	Strategy string        `yaml:"strategy"`
	Delay    time.Duration `yaml:"delay"`
	MaxDelay time.Duration `yaml:"maxDelay"`
}

// backoff builds the reconnect delays. Without a delay each strategy uses
// its stock parameters.
func (r *retryConfig) backoff() (backoff.Backoff, error) {
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	var b backoff.Backoff
	switch r.Strategy {
	case "", "exponential":
		b = backoff.ExponentialD()
		if r.Delay > 0 {
			b = backoff.Exponential(r.Delay, 2)
		}
	case "linear":
		b = backoff.LinearD()
		if r.Delay > 0 {
			b = backoff.Linear(r.Delay, r.Delay)
		}
	case "constant":
		b = backoff.ConstantD()
		if r.Delay > 0 {
			b = backoff.Constant(r.Delay)
		}
	case "random":
		b = backoff.RandomD()
		if r.Delay > 0 {
			b = backoff.Random(r.Delay, maxDelay)
		}
	default:
		return nil, fmt.Errorf("unknown retry strategy: %s", r.Strategy)
	}
	return backoff.Capped(b, maxDelay), nil
}

type config struct {
	LogLevel   string       `yaml:"logLevel"`
	LogFormat  string       `yaml:"logFormat"`
	TrustRoots string       `yaml:"trustRoots"`
	Proxy      string       `yaml:"proxy"`
	Metrics    bool         `yaml:"metrics"`
	Retry      *retryConfig `yaml:"retry"`
	Message    *message     `yaml:"message"`
	Devices    []device     `yaml:"devices"`
}

func readConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*config, error) {
	cfg := &config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return fmt.Errorf("invalid proxy: %w", err)
		}
	}
	if c.Message != nil && c.Message.Namespace == "" {
		return fmt.Errorf("message needs a namespace")
	}
	if c.Retry != nil {
		if _, err := c.Retry.backoff(); err != nil {
			return err
		}
	}
	for i := range c.Devices {
		params, err := c.Devices[i].params()
		if err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		c.Devices[i].openParams = params
	}
	return nil
}

func (c *config) Level() slog.Level {
	return xlog.ParseLevel(c.LogLevel)
}

func (c *config) logger() *xlog.Logger {
	if c.LogFormat == "json" {
		return xlog.NewJSON(c.Level())
	}
	return xlog.NewText(c.Level())
}

func (c *config) proxyURL() *url.URL {
	if c.Proxy == "" {
		return nil
	}
	u, _ := url.Parse(c.Proxy)
	return u
}

// params turns the device entry into open params; a bare IP gets the
// default Cast port.
func (d device) params() (channel.OpenParams, error) {
	ep, err := netip.ParseAddrPort(d.Endpoint)
	if err != nil {
		addr, aerr := netip.ParseAddr(d.Endpoint)
		if aerr != nil {
			return channel.OpenParams{}, fmt.Errorf("invalid endpoint %q: %w", d.Endpoint, err)
		}
		ep = netip.AddrPortFrom(addr, channel.DefaultPort)
	}
	caps, err := channel.ParseCapabilities(d.Capabilities)
	if err != nil {
		return channel.OpenParams{}, err
	}
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = channel.DefaultConnectTimeout
	}
	params := channel.NewOpenParams(ep, timeout)
	params.LivenessTimeout = d.LivenessTimeout
	params.PingInterval = d.PingInterval
	if params.LivenessTimeout > 0 && params.PingInterval == 0 {
		params.PingInterval = params.LivenessTimeout / 2
	}
	params.DeviceCapabilities = caps
	return params, params.Validate()
}

func (d device) label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Endpoint
}
