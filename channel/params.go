package channel

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"sutext.github.io/cast/xerr"
)

// Capability is a bitmask of media capabilities a device declares.
type Capability uint32

const (
	CapabilityNone           Capability = 0
	CapabilityVideoOut       Capability = 1 << 0
	CapabilityVideoIn        Capability = 1 << 1
	CapabilityAudioOut       Capability = 1 << 2
	CapabilityAudioIn        Capability = 1 << 3
	CapabilityMultizoneGroup Capability = 1 << 4
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapabilityVideoOut, "video_out"},
	{CapabilityVideoIn, "video_in"},
	{CapabilityAudioOut, "audio_out"},
	{CapabilityAudioIn, "audio_in"},
	{CapabilityMultizoneGroup, "multizone_group"},
}

func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

func (c Capability) String() string {
	if c == CapabilityNone {
		return "none"
	}
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseCapabilities turns names like "video_out" into a bitmask.
func ParseCapabilities(names []string) (Capability, error) {
	var c Capability
	for _, name := range names {
		found := false
		for _, n := range capabilityNames {
			if strings.EqualFold(strings.TrimSpace(name), n.name) {
				c |= n.c
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown device capability: %s", name)
		}
	}
	return c, nil
}

const (
	DefaultPort           = 8009
	DefaultConnectTimeout = 10 * time.Second
	DefaultLiveness       = 10 * time.Second
	DefaultPingInterval   = 5 * time.Second
)

// OpenParams is the caller supplied configuration of one channel. It is
// copied into the socket at construction and never mutated afterwards.
type OpenParams struct {
	Endpoint           netip.AddrPort
	ConnectTimeout     time.Duration
	LivenessTimeout    time.Duration
	PingInterval       time.Duration
	DeviceCapabilities Capability
}

// NewOpenParams returns params without keep-alive.
func NewOpenParams(endpoint netip.AddrPort, connectTimeout time.Duration) OpenParams {
	return OpenParams{
		Endpoint:       endpoint,
		ConnectTimeout: connectTimeout,
	}
}

// Validate reports whether the params can drive a connect attempt.
func (p OpenParams) Validate() error {
	if !p.Endpoint.IsValid() || p.Endpoint.Port() == 0 {
		return fmt.Errorf("%w: %s", xerr.InvalidEndpoint, p.Endpoint)
	}
	if p.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect timeout must be positive", xerr.InvalidOpenParams)
	}
	if p.LivenessTimeout < 0 || p.PingInterval < 0 {
		return fmt.Errorf("%w: negative keep-alive duration", xerr.InvalidOpenParams)
	}
	if p.LivenessTimeout > 0 && (p.PingInterval <= 0 || p.PingInterval >= p.LivenessTimeout) {
		return fmt.Errorf("%w: ping interval must be positive and shorter than liveness timeout", xerr.InvalidOpenParams)
	}
	return nil
}

// KeepAlive reports whether the channel runs liveness detection.
func (p OpenParams) KeepAlive() bool {
	return p.LivenessTimeout > 0
}
