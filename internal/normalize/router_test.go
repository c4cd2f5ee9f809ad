package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRouter_DirectFields(t *testing.T) {
	n := fixedNormalizer()
	got := n.Router([]byte(`{"cpu": "24", "memory": "2147483648", "uptime": "90061"}`))

	assert.Equal(t, "24%", got.CPUDisplay)
	assert.Equal(t, "2.00 GB", got.MemoryDisplay)
	assert.Equal(t, "1d 1h 1m", got.UptimeDisplay)
	assert.Equal(t, "Router", got.Name)
}

func TestRouter_Wrappers(t *testing.T) {
	n := fixedNormalizer()

	obj := n.Router([]byte(`{"data": {"CPU": "12%", "Memory": 40, "Uptime": 59, "router": "edge-1"}}`))
	assert.Equal(t, "12%", obj.CPUDisplay)
	assert.Equal(t, "40%", obj.MemoryDisplay)
	assert.Equal(t, "59s", obj.UptimeDisplay)
	assert.Equal(t, "edge-1", obj.Name)

	rows := n.Router([]byte(`{"data": [{"cpu": 7.5, "memory": "1048576", "Timestamp": "2025-08-08T11:00:00Z"}, {"cpu": 99}]}`))
	assert.Equal(t, "7.5%", rows.CPUDisplay)
	assert.Equal(t, "1.00 MB", rows.MemoryDisplay)
	assert.Equal(t, "1h", rows.UptimeDisplay, "row timestamp is an uptime anchor")

	blank := n.Router([]byte(`{"data": [{"Uptime": "", "Timestamp": "2025-08-08T10:00:00Z"}]}`))
	assert.Equal(t, "2h", blank.UptimeDisplay, "empty row uptime falls through to Timestamp")
}

func TestRouter_OpaqueAndMissing(t *testing.T) {
	n := fixedNormalizer()

	got := n.Router([]byte(`{"cpu": "busy", "memory": "1024 MB", "uptime": "5 days"}`))
	assert.Equal(t, "busy", got.CPUDisplay)
	assert.Equal(t, "1024 MB", got.MemoryDisplay)
	assert.Equal(t, "5 days", got.UptimeDisplay)

	empty := n.Router([]byte(`not json`))
	assert.Equal(t, missingValue, empty.CPUDisplay)
	assert.Equal(t, missingValue, empty.MemoryDisplay)
	assert.Equal(t, missingValue, empty.UptimeDisplay)
}

func TestUptimeDisplay_Timestamps(t *testing.T) {
	now := time.Date(2025, time.August, 8, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "2h 30m", uptimeDisplay("2025-08-08 09:30:00", now))
	assert.Equal(t, "2025-08-09T00:00:00Z", uptimeDisplay("2025-08-09T00:00:00Z", now), "future anchors fall back to raw")
	assert.Equal(t, "Tuesday", uptimeDisplay("Tuesday", now), "unparsable falls back to raw")
}
