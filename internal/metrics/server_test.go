package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesCollectors(t *testing.T) {
	IPv4ReceivedTotal.Inc()
	IPv4DroppedTotal.WithLabelValues(DropBadChecksum).Inc()

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hoststack_ipv4_received_total")
	assert.Contains(t, string(body), `hoststack_ipv4_dropped_total{reason="bad_checksum"}`)
}

func TestServerStartFailsOnBadAddress(t *testing.T) {
	s := NewServer("256.0.0.1:bad", "/m")
	assert.Error(t, s.Start(context.Background()))
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "").Stop(context.Background()))
}

func TestCounterVecLabels(t *testing.T) {
	before := testutil.ToFloat64(ICMPSentTotal.WithLabelValues("echo_reply"))
	ICMPSentTotal.WithLabelValues("echo_reply").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ICMPSentTotal.WithLabelValues("echo_reply")))
}
