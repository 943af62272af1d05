package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	MessagesRelayedTotal.WithLabelValues("ping").Inc()
	RelayErrorsTotal.WithLabelValues(ReasonNoSuchID).Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "pinger_messages_relayed_total")
	assert.Contains(t, body, "pinger_relay_errors_total")
}

func TestConnectionsGaugeTracksActiveCount(t *testing.T) {
	ConnectionsActive.Set(0)
	ConnectionsActive.Inc()
	ConnectionsActive.Inc()
	ConnectionsActive.Dec()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "pinger_connections_active 1")
}
