package embedding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmbedMetrics(t *testing.T) {
	var m EmbedMetrics
	m.record(time.Now(), 4, true)
	m.record(time.Now(), 7, true)
	m.record(time.Now(), 0, false)

	got := m.GetMetrics()
	assert.Equal(t, int64(3), got["total_calls"])
	assert.Equal(t, int64(2), got["successful_ops"])
	assert.Equal(t, int64(1), got["failed_ops"])
	assert.Equal(t, int64(11), got["tokens"])
	assert.False(t, got["last_call"].(time.Time).IsZero())
}
