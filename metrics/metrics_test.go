package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConnectionsAccepted_Increments(t *testing.T) {
	before := testutil.ToFloat64(ConnectionsAccepted)
	ConnectionsAccepted.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ConnectionsAccepted))
}

func TestRecipientsTotal_LabelsByResult(t *testing.T) {
	before := testutil.ToFloat64(RecipientsTotal.WithLabelValues("accepted"))
	RecipientsTotal.WithLabelValues("accepted").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RecipientsTotal.WithLabelValues("accepted")))
}

func TestRelayDeliveries_SuccessAndFailureAreDistinctSeries(t *testing.T) {
	beforeSuccess := testutil.ToFloat64(RelayDeliveries.WithLabelValues("success"))
	beforeFailure := testutil.ToFloat64(RelayDeliveries.WithLabelValues("failure"))

	RelayDeliveries.WithLabelValues("success").Inc()

	assert.Equal(t, beforeSuccess+1, testutil.ToFloat64(RelayDeliveries.WithLabelValues("success")))
	assert.Equal(t, beforeFailure, testutil.ToFloat64(RelayDeliveries.WithLabelValues("failure")))
}
