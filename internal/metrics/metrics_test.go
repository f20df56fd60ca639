package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bnn-rehab/internal/mapview"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	c := New()

	c.SnapshotApplied(3)
	c.SnapshotApplied(2)
	c.WriteCompleted("create", nil)
	c.WriteCompleted("create", errors.New("down"))
	c.WriteCompleted("delete", nil)
	c.SubscriptionFailed()
	c.MarkersReconciled(make([]mapview.Marker, 4))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.snapshots))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.records))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writes.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writes.WithLabelValues("create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writes.WithLabelValues("delete", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.subscriptionErrors))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.markers))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.SnapshotApplied(1)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "bnn_rehab_snapshots_total 1"))
	assert.Contains(t, string(body), "go_goroutines")
}
