package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLifecycle(t *testing.T) {
	callsActive.Set(0)
	teardownsTotal.Reset()

	CallStarted()
	CallStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(callsActive))

	CallEnded("hangup")
	assert.Equal(t, 1.0, testutil.ToFloat64(callsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(teardownsTotal.WithLabelValues("hangup")))
}

func TestRecordAction(t *testing.T) {
	actionsTotal.Reset()

	RecordAction("speak", StatusSuccess)
	RecordAction("speak", StatusSuccess)
	RecordAction("speak", StatusError)

	assert.Equal(t, 2.0, testutil.ToFloat64(actionsTotal.WithLabelValues("speak", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(actionsTotal.WithLabelValues("speak", StatusError)))
}

func TestRecordTicket(t *testing.T) {
	ticketsTotal.Reset()

	RecordTicket(StatusSuccess, true)
	RecordTicket(StatusError, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(ticketsTotal.WithLabelValues(StatusSuccess, "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ticketsTotal.WithLabelValues(StatusError, "false")))
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	RecordReprompt()
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["intake_reprompts_total"])
	assert.True(t, names["intake_calls_active"])
}
