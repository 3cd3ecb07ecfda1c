package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHelpersUpdateCollectors(t *testing.T) {
	before := testutil.ToFloat64(MessagesProcessed.WithLabelValues("labeled"))
	IncrementProcessed("labeled")
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesProcessed.WithLabelValues("labeled")))

	before = testutil.ToFloat64(CategoriesAssigned.WithLabelValues("Spam", "model"))
	IncrementCategory("Spam", "model")
	assert.Equal(t, before+1, testutil.ToFloat64(CategoriesAssigned.WithLabelValues("Spam", "model")))

	before = testutil.ToFloat64(RunErrors)
	IncrementRunErrors()
	assert.Equal(t, before+1, testutil.ToFloat64(RunErrors))

	RecordModelCallLatency("anthropic.claude-v2", "success", 250*time.Millisecond)
	RecordRunDuration(2 * time.Second)
}

func TestHandlerServesMetrics(t *testing.T) {
	IncrementProcessed("dry_run")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mailtriage_messages_processed_total{status="dry_run"}`)
}
