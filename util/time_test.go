package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateToHour(t *testing.T) {
	hour := int64(3600 * 1000)
	base := int64(458333) * hour

	assert.Equal(t, base, TruncateToHour(base))
	assert.Equal(t, base, TruncateToHour(base+1))
	assert.Equal(t, base, TruncateToHour(base+hour-1))
	assert.Equal(t, base+hour, TruncateToHour(base+hour))
}
