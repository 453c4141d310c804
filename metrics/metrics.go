package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contact_kiwi"

var (
	// Submissions counts contact form submissions by how they were handled
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "number of contact form submissions",
	}, []string{"outcome"})

	// Notifications counts operator notification attempts
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "number of notification emails attempted",
	}, []string{"result"})

	// VerificationRequests counts calls to the human verification service
	VerificationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verification_requests_total",
		Help:      "number of human verification checks",
	}, []string{"result"})

	// OpenConversations is the number of conversations waiting on a reply
	OpenConversations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_conversations",
		Help:      "number of conversations with status open",
	})
)
