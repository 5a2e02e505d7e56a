package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newListener(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, conn.LocalAddr().String()
}

func readLine(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClientEmitsMetrics(t *testing.T) {
	listener, addr := newListener(t)

	client, err := NewClient(Config{Enabled: true, Address: addr, Prefix: "queuectl."})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	require.True(t, client.Enabled())

	client.Count("job.transition", 1, map[string]string{"result": "success", "transition": "completed"})
	assert.Equal(t, "queuectl.job.transition:1|c|#result:success,transition:completed", readLine(t, listener))

	client.Gauge("workers.active", 3, nil)
	assert.Equal(t, "queuectl.workers.active:3|g", readLine(t, listener))

	client.Timing("job.duration", 1500*time.Millisecond, nil)
	assert.Equal(t, "queuectl.job.duration:1500|ms", readLine(t, listener))
}

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	// Must not panic, including through a nil receiver.
	client.Count("x", 1, nil)
	var nilClient *Client
	nilClient.Count("x", 1, nil)
	nilClient.Timing("x", time.Second, nil)
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
}

func TestMetricNameSanitisation(t *testing.T) {
	c := &Client{prefix: "queuectl"}
	assert.Equal(t, "queuectl.job.claim", c.metricName(" job.claim "))
	assert.Equal(t, "queuectl.worker_loop", c.metricName("worker loop"))
	assert.Equal(t, "", c.metricName("  "))
}
