package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ApplicationSubmitted()
	m.ApplicationSubmitted()
	m.StatusChanged(models.StatusShortlisted)
	m.NotificationFailed("status_update")
	m.Request(http.MethodGet, "/api/internships", http.StatusOK)
	m.ExpiredPostings(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ApplicationsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusTransitions.WithLabelValues("shortlisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsFailed.WithLabelValues("status_update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/internships", "200")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PostingsClosed))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketplace_applications_submitted_total 2")
}
