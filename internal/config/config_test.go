package config

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hoststack/internal/core"
)

const minimalConfig = `
hoststack:
  interface:
    addr: 192.168.1.2
    mac: "02:00:00:00:00:02"
  link:
    pcap:
      input: in.pcap
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("192.168.1.2"), cfg.Interface.Addr)
	assert.Equal(t, "eth0", cfg.Interface.Name)
	assert.Equal(t, core.EthernetMTU, cfg.Interface.MTU)
	assert.Equal(t, uint8(64), cfg.IPv4.TTL)
	assert.False(t, cfg.IPv4.AssignIDs)
	assert.False(t, cfg.IPv4.Reassembly.Enabled)
	assert.Equal(t, 30*time.Second, cfg.IPv4.Reassembly.Timeout)
	assert.Equal(t, 10*time.Second, cfg.IPv4.Reassembly.RateLimitWindow)
	assert.Equal(t, LinkPcap, cfg.Link.Type)
	assert.Equal(t, 60*time.Second, cfg.ARP.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Nil(t, cfg.Reassembly())
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
hoststack:
  interface:
    name: veth1
    addr: 10.0.0.1
    mac: "02:00:00:00:00:01"
    mtu: 9000
  ipv4:
    ttl: 32
    assign_ids: true
    reassembly:
      enabled: true
      timeout: 5s
      max_fragments: 16
      max_frags_per_ip: 1000
  link:
    type: afpacket
    afpacket:
      buffer_size_mb: 2
      timeout: 250ms
  arp:
    timeout: 2m
  log:
    level: debug
    format: json
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
`))
	require.NoError(t, err)

	assert.Equal(t, uint8(32), cfg.IPv4.TTL)
	assert.True(t, cfg.IPv4.AssignIDs)
	assert.Equal(t, "veth1", cfg.Link.AFPacket.Device, "device falls back to the interface name")
	assert.Equal(t, 250*time.Millisecond, cfg.Link.AFPacket.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.ARP.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)

	r := cfg.Reassembly()
	require.NotNil(t, r)
	assert.Equal(t, 5*time.Second, r.Timeout)
	assert.Equal(t, 16, r.MaxFragments)
	assert.Equal(t, 65535, r.MaxSize)
	assert.Equal(t, 1000, r.MaxFragsPerIP)

	iface := cfg.LocalInterface()
	assert.Equal(t, "veth1", iface.Name)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), iface.Addr)
	assert.Equal(t, net.HardwareAddr{2, 0, 0, 0, 0, 1}, iface.MAC)
	assert.Equal(t, 9000, iface.MTU)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOSTSTACK_INTERFACE_ADDR", "172.16.0.9")
	t.Setenv("HOSTSTACK_LOG_LEVEL", "trace")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("172.16.0.9"), cfg.Interface.Addr)
	assert.Equal(t, "trace", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing address", `
hoststack:
  interface:
    mac: "02:00:00:00:00:02"
  link:
    pcap:
      input: in.pcap
`},
		{"ipv6 address", `
hoststack:
  interface:
    addr: "fe80::1"
    mac: "02:00:00:00:00:02"
  link:
    pcap:
      input: in.pcap
`},
		{"bad mac", `
hoststack:
  interface:
    addr: 192.168.1.2
    mac: "not-a-mac"
  link:
    pcap:
      input: in.pcap
`},
		{"long mac", `
hoststack:
  interface:
    addr: 192.168.1.2
    mac: "02:00:00:00:00:00:00:02"
  link:
    pcap:
      input: in.pcap
`},
		{"small mtu", `
hoststack:
  interface:
    addr: 192.168.1.2
    mac: "02:00:00:00:00:02"
    mtu: 67
  link:
    pcap:
      input: in.pcap
`},
		{"log level", minimalConfig + `
  log:
    level: verbose
`},
		{"log format", minimalConfig + `
  log:
    format: xml
`},
		{"pcap without input", `
hoststack:
  interface:
    addr: 192.168.1.2
    mac: "02:00:00:00:00:02"
`},
		{"link type", `
hoststack:
  interface:
    addr: 192.168.1.2
    mac: "02:00:00:00:00:02"
  link:
    type: tap
    pcap:
      input: in.pcap
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestValidateErrorsAreConfigInvalid(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), core.ErrConfigInvalid)
}
