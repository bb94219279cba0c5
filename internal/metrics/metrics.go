// Package metrics exposes Prometheus metrics for the call session engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "intake"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

var (
	// callsActive is a gauge of calls with a live per-call actor.
	callsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of calls currently owned by the engine",
		},
	)

	// sessionsActive is a gauge of connected media sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "media_sessions_active",
			Help:      "Number of media stream sessions currently relaying audio",
		},
	)

	// teardownsTotal counts call teardowns by trigger.
	teardownsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_teardowns_total",
			Help:      "Total call teardowns by trigger",
		},
		[]string{"reason"},
	)

	// transcriptsTotal counts final transcripts by route (flow, faq, dropped).
	transcriptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "final_transcripts_total",
			Help:      "Total final transcripts by route",
		},
		[]string{"route"},
	)

	// actionsTotal counts outbound call control actions.
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total outbound call control actions",
		},
		[]string{"action", "status"},
	)

	// ticketsTotal counts ticket submissions.
	ticketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_total",
			Help:      "Total ticket submissions",
		},
		[]string{"status", "emergency"},
	)

	// faqOutcomesTotal counts FAQ responses (answer, callback).
	faqOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faq_outcomes_total",
			Help:      "Total FAQ responses by outcome",
		},
		[]string{"outcome"},
	)

	// repromptsTotal counts reply timer firings.
	repromptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reprompts_total",
			Help:      "Total silence reprompts spoken",
		},
	)

	registerOnce sync.Once
)

// Collectors returns every collector defined by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		callsActive,
		sessionsActive,
		teardownsTotal,
		transcriptsTotal,
		actionsTotal,
		ticketsTotal,
		faqOutcomesTotal,
		repromptsTotal,
	}
}

// Register registers the collectors with reg once per process.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(Collectors()...)
	})
}

// CallStarted increments the active call gauge.
func CallStarted() { callsActive.Inc() }

// CallEnded records a teardown and decrements the active call gauge.
func CallEnded(reason string) {
	callsActive.Dec()
	teardownsTotal.WithLabelValues(reason).Inc()
}

// SessionOpened increments the media session gauge.
func SessionOpened() { sessionsActive.Inc() }

// SessionClosed decrements the media session gauge.
func SessionClosed() { sessionsActive.Dec() }

// RecordTranscript counts a final transcript routed to route.
func RecordTranscript(route string) {
	transcriptsTotal.WithLabelValues(route).Inc()
}

// RecordAction counts an outbound action with its status.
func RecordAction(action, status string) {
	actionsTotal.WithLabelValues(action, status).Inc()
}

// RecordTicket counts a ticket submission.
func RecordTicket(status string, emergency bool) {
	e := "false"
	if emergency {
		e = "true"
	}
	ticketsTotal.WithLabelValues(status, e).Inc()
}

// RecordFAQOutcome counts an FAQ response.
func RecordFAQOutcome(outcome string) {
	faqOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordReprompt counts a reply timer firing.
func RecordReprompt() { repromptsTotal.Inc() }
