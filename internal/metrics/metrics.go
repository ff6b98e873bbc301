// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of IPv4DroppedTotal.
const (
	DropTooShort     = "too_short"
	DropBadVersion   = "bad_version"
	DropBadLength    = "bad_length"
	DropBadChecksum  = "bad_checksum"
	DropNotForUs     = "not_for_us"
	DropFragment     = "fragment"
	DropICMPTooShort = "icmp_too_short"
	DropTooLarge     = "too_large"
)

var (
	// IPv4ReceivedTotal counts datagrams handed to the engine by the link layer
	IPv4ReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hoststack_ipv4_received_total",
			Help: "Total number of IPv4 datagrams received from the link layer",
		},
	)

	// IPv4DroppedTotal counts silently dropped datagrams by reason
	IPv4DroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoststack_ipv4_dropped_total",
			Help: "Total number of IPv4 datagrams silently dropped",
		},
		[]string{"reason"},
	)

	// IPv4DeliveredTotal counts payloads dispatched to a protocol handler
	IPv4DeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoststack_ipv4_delivered_total",
			Help: "Total number of IPv4 payloads delivered to upper-layer handlers",
		},
		[]string{"protocol"},
	)

	// IPv4DatagramsSentTotal counts outbound datagrams before fragmentation
	IPv4DatagramsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hoststack_ipv4_datagrams_sent_total",
			Help: "Total number of IPv4 datagrams sent",
		},
	)

	// IPv4FragmentsSentTotal counts every framed unit handed to the link layer
	IPv4FragmentsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hoststack_ipv4_fragments_sent_total",
			Help: "Total number of IPv4 fragments handed to the link layer",
		},
	)

	// ICMPSentTotal counts ICMP messages sent by type
	ICMPSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoststack_icmp_sent_total",
			Help: "Total number of ICMP messages sent",
		},
		[]string{"type"},
	)

	// ReassemblyActiveFlows tracks datagrams awaiting more fragments
	ReassemblyActiveFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoststack_reassembly_active_flows",
			Help: "Number of incomplete datagrams held for reassembly",
		},
	)

	// ReassemblyRejectedTotal counts fragments refused by the reassembler
	ReassemblyRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hoststack_reassembly_rejected_total",
			Help: "Total number of fragments rejected by the reassembler",
		},
	)

	// LinkErrorsTotal counts link-layer write failures
	LinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoststack_link_errors_total",
			Help: "Total number of link-layer transmit errors",
		},
		[]string{"link"},
	)

	// ARPCacheEntries tracks resolved neighbor entries
	ARPCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoststack_arp_cache_entries",
			Help: "Number of entries in the ARP cache",
		},
	)
)
