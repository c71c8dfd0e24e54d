// Package metrics exposes Prometheus instrumentation for the SMTP
// receive state machine and relay dispatcher, grounded on the
// teacher's pkg/metrics package: promauto-registered vectors keyed by
// label, collected into the default registry and served by
// promhttp.Handler() in cmd/mailingset.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsAccepted counts SMTP connections that passed the
	// accept_from policy check (spec §4.6 step 1).
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailingset_connections_accepted_total",
		Help: "Total number of SMTP connections accepted.",
	})

	// ConnectionsRejected counts connections refused for being outside
	// every configured accept_from CIDR.
	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailingset_connections_rejected_total",
		Help: "Total number of SMTP connections rejected by accept_from policy.",
	})

	// RecipientsTotal counts RCPT TO outcomes by result: accepted, or
	// one of the spec §7 error kinds.
	RecipientsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailingset_recipients_total",
		Help: "Total RCPT TO commands processed, by outcome.",
	}, []string{"result"})

	// MessagesQueued counts DATA hand-offs that were committed to the
	// relay dispatcher.
	MessagesQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailingset_messages_queued_total",
		Help: "Total messages successfully handed off to the relay dispatcher.",
	})

	// RelayDeliveries counts individual outbound relay attempts by
	// outcome (success/failure), one per resolved recipient (spec §4.7).
	RelayDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailingset_relay_deliveries_total",
		Help: "Total outbound relay deliveries attempted, by outcome.",
	}, []string{"result"})
)
