package anchor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNegativeTrustAnchorsCovers(t *testing.T) {
	nta := NewNegativeTrustAnchors(map[string]time.Time{
		"broken.example": time.Now().Add(time.Hour),
		"fixed.example":  time.Now().Add(-time.Hour),
	})

	now := time.Now()
	require.True(t, nta.Covers("host.broken.example.", now))
	require.True(t, nta.Covers("broken.example.", now))
	require.False(t, nta.Covers("host.fixed.example.", now))
	require.False(t, nta.Covers("other.example.", now))
}
