package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementBansCreated()
	m.IncrementBansCreated()
	m.IncrementLoginDenials(DenialTempBan)
	m.SetTempBansPending(3)
	m.AddTempBansExpired(2)
	m.AddTempBansExpired(0)
	m.IncrementStoreRecoveries(RecoveryReset)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BansCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginDenials.WithLabelValues(DenialTempBan)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TempBansPending))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TempBansExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRecoveries.WithLabelValues(RecoveryReset)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementBansCreated()
		m.IncrementLoginDenials(DenialName)
		m.SetTempBansPending(1)
		m.IncrementStoreWriteFailures()
	})
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
