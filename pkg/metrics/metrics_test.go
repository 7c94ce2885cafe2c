package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	t.Parallel()
	r, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	r.Decision("forward")
	r.Decision("forward")
	r.Decision("signature_invalid")
	r.TenantLookup(LookupHit)
	r.TenantLookup(LookupMiss)
	r.IdentityProviderFetch("ok", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("forward")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("signature_invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tenantLookups.WithLabelValues(LookupHit)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.idpFetch))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Decision("forward")
		r.TenantLookup(LookupError)
		r.IdentityProviderFetch("error", time.Second)
	})
	assert.NotNil(t, r.Handler())
}

func TestNew_DuplicateRegistrationFails(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNew(reg) })
}

func TestRecorder_Handler(t *testing.T) {
	t.Parallel()
	r := MustNew(prometheus.NewRegistry())
	r.Decision("forward")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `realm_gateway_decisions_total{outcome="forward"} 1`)
}
