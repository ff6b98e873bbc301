// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/hoststack/internal/core"
	"firestige.xyz/hoststack/internal/ipv4"
	"firestige.xyz/hoststack/internal/log"
)

// Link types.
const (
	LinkPcap     = "pcap"
	LinkAFPacket = "afpacket"
)

// Config is the top-level configuration.
// Maps to the `hoststack:` root key in YAML.
type Config struct {
	Interface InterfaceConfig `mapstructure:"interface" yaml:"interface"`
	IPv4      IPv4Config      `mapstructure:"ipv4" yaml:"ipv4"`
	Link      LinkConfig      `mapstructure:"link" yaml:"link"`
	ARP       ARPConfig       `mapstructure:"arp" yaml:"arp"`
	Log       log.Config      `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// ─── Interface ───

// InterfaceConfig describes the single local interface.
type InterfaceConfig struct {
	Name string     `mapstructure:"name" yaml:"name"`
	Addr netip.Addr `mapstructure:"addr" yaml:"addr"`
	MAC  string     `mapstructure:"mac" yaml:"mac"`
	MTU  int        `mapstructure:"mtu" yaml:"mtu"`
}

// ─── IPv4 ───

// IPv4Config configures the datagram engine.
type IPv4Config struct {
	TTL        uint8            `mapstructure:"ttl" yaml:"ttl"`
	AssignIDs  bool             `mapstructure:"assign_ids" yaml:"assign_ids"`
	Reassembly ReassemblyConfig `mapstructure:"reassembly" yaml:"reassembly"`
}

// ReassemblyConfig controls IP fragment reassembly.
type ReassemblyConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxFragments    int           `mapstructure:"max_fragments" yaml:"max_fragments"`
	MaxSize         int           `mapstructure:"max_size" yaml:"max_size"`
	MaxFragsPerIP   int           `mapstructure:"max_frags_per_ip" yaml:"max_frags_per_ip"` // 0 = no rate limit
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"`
}

// ─── Link ───

// LinkConfig selects where frames come from and go to.
type LinkConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"` // pcap | afpacket
	Pcap     PcapConfig     `mapstructure:"pcap" yaml:"pcap"`
	AFPacket AFPacketConfig `mapstructure:"afpacket" yaml:"afpacket"`
}

// PcapConfig replays frames from Input and records outbound frames to Output.
type PcapConfig struct {
	Input  string `mapstructure:"input" yaml:"input"`
	Output string `mapstructure:"output" yaml:"output"` // Empty = discard outbound frames
}

// AFPacketConfig binds to a live interface (linux only).
type AFPacketConfig struct {
	Device       string        `mapstructure:"device" yaml:"device"`
	SnapLen      int           `mapstructure:"snap_len" yaml:"snap_len"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ─── ARP ───

// ARPConfig configures address resolution on Ethernet links.
type ARPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `hoststack: ...`.
type configRoot struct {
	HostStack Config `mapstructure:"hoststack"`
}

// Load loads configuration from file.
// The YAML file uses `hoststack:` as root key; env vars use the HOSTSTACK_ prefix
// (e.g. HOSTSTACK_INTERFACE_ADDR).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// The `hoststack.` key prefix maps to HOSTSTACK_ through the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.HostStack

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// setDefaults sets default values for configuration.
// All keys use the "hoststack." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("hoststack.interface.name", "eth0")
	v.SetDefault("hoststack.interface.mtu", core.EthernetMTU)

	// IPv4 defaults
	v.SetDefault("hoststack.ipv4.ttl", ipv4.DefaultTTL)
	v.SetDefault("hoststack.ipv4.assign_ids", false)
	v.SetDefault("hoststack.ipv4.reassembly.enabled", false)
	v.SetDefault("hoststack.ipv4.reassembly.timeout", "30s")
	v.SetDefault("hoststack.ipv4.reassembly.max_fragments", 100)
	v.SetDefault("hoststack.ipv4.reassembly.max_size", 65535)
	v.SetDefault("hoststack.ipv4.reassembly.max_frags_per_ip", 0)
	v.SetDefault("hoststack.ipv4.reassembly.rate_limit_window", "10s")

	// Link defaults
	v.SetDefault("hoststack.link.type", LinkPcap)
	v.SetDefault("hoststack.link.afpacket.snap_len", 65536)
	v.SetDefault("hoststack.link.afpacket.buffer_size_mb", 8)
	v.SetDefault("hoststack.link.afpacket.timeout", "100ms")
	v.SetDefault("hoststack.arp.timeout", "60s")

	// Log defaults
	v.SetDefault("hoststack.log.level", "info")
	v.SetDefault("hoststack.log.format", "text")
	v.SetDefault("hoststack.log.pattern", log.DefaultPattern)
	v.SetDefault("hoststack.log.time", log.DefaultTime)
	v.SetDefault("hoststack.log.file.enabled", false)
	v.SetDefault("hoststack.log.file.path", "/var/log/hoststack/hoststack.log")
	v.SetDefault("hoststack.log.file.max_size_mb", 100)
	v.SetDefault("hoststack.log.file.max_age_days", 30)
	v.SetDefault("hoststack.log.file.max_backups", 5)
	v.SetDefault("hoststack.log.file.compress", true)

	// Metrics defaults
	v.SetDefault("hoststack.metrics.enabled", false)
	v.SetDefault("hoststack.metrics.listen", ":9091")
	v.SetDefault("hoststack.metrics.path", "/metrics")
}

// Validate checks the configuration for values the stack cannot run with.
func (cfg *Config) Validate() error {
	// ── Interface ──
	if !cfg.Interface.Addr.Is4() {
		return fmt.Errorf("%w: interface.addr must be an IPv4 address, got %q", core.ErrConfigInvalid, cfg.Interface.Addr)
	}
	if _, err := cfg.hardwareAddr(); err != nil {
		return err
	}
	if cfg.Interface.MTU < ipv4.MinMTU {
		return fmt.Errorf("%w: interface.mtu %d below %d", core.ErrConfigInvalid, cfg.Interface.MTU, ipv4.MinMTU)
	}
	if cfg.IPv4.TTL == 0 {
		return fmt.Errorf("%w: ipv4.ttl must be positive", core.ErrConfigInvalid)
	}

	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Link ──
	switch cfg.Link.Type {
	case LinkPcap:
		if cfg.Link.Pcap.Input == "" {
			return fmt.Errorf("%w: link.pcap.input is required when link.type=pcap", core.ErrConfigInvalid)
		}
	case LinkAFPacket:
		if cfg.Link.AFPacket.Device == "" {
			cfg.Link.AFPacket.Device = cfg.Interface.Name
		}
		if cfg.Link.AFPacket.Device == "" {
			return fmt.Errorf("%w: link.afpacket.device is required when link.type=afpacket", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported link.type: %s (must be pcap/afpacket)", core.ErrConfigInvalid, cfg.Link.Type)
	}
	return nil
}

func (cfg *Config) hardwareAddr() (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(cfg.Interface.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: interface.mac: %v", core.ErrConfigInvalid, err)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("%w: interface.mac %s is not an Ethernet address", core.ErrConfigInvalid, cfg.Interface.MAC)
	}
	return mac, nil
}

// LocalInterface returns the interface description the stack is built with.
// It must only be called on a validated Config.
func (cfg *Config) LocalInterface() core.Interface {
	mac, _ := cfg.hardwareAddr()
	return core.Interface{
		Name: cfg.Interface.Name,
		Addr: cfg.Interface.Addr,
		MAC:  mac,
		MTU:  cfg.Interface.MTU,
	}
}

// Reassembly returns the reassembler settings, or nil when reassembly is off.
func (cfg *Config) Reassembly() *ipv4.ReassemblyConfig {
	r := cfg.IPv4.Reassembly
	if !r.Enabled {
		return nil
	}
	return &ipv4.ReassemblyConfig{
		MaxFragments:    r.MaxFragments,
		MaxSize:         r.MaxSize,
		Timeout:         r.Timeout,
		MaxFragsPerIP:   r.MaxFragsPerIP,
		RateLimitWindow: r.RateLimitWindow,
	}
}
