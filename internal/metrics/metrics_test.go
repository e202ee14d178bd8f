package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegister_IsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(Logouts.WithLabelValues("user"))
	Logouts.WithLabelValues("user").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(Logouts.WithLabelValues("user")))
}
