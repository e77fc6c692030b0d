package resolve

import (
	"testing"
	"time"

	"github.com/nsmithuk/dnsvalidate/vconfig"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLiveResolverBadCacheCheck(t *testing.T) {
	r, err := NewLiveResolver("127.0.0.1", nil)
	require.NoError(t, err)

	require.False(t, r.BadCacheCheck("example.com.", 1, time.Now()))

	r.badcache.Add(badCacheKey("example.com.", 1), time.Now().Add(time.Minute))
	require.True(t, r.BadCacheCheck("example.com.", 1, time.Now()))

	require.False(t, r.BadCacheCheck("example.com.", 1, time.Now().Add(2*time.Minute)))
}

func TestLiveResolverPolicyDelegation(t *testing.T) {
	v := viper.New()
	v.Set("disabled_algorithms", []int{1})
	policy := vconfig.Load(v)

	r, err := NewLiveResolver("127.0.0.1", policy)
	require.NoError(t, err)

	require.False(t, r.AlgorithmSupported(1))
	require.True(t, r.AlgorithmSupported(8))
}
