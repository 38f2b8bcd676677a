package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Denial kinds used as the "kind" label on login denials.
const (
	DenialName      = "name"
	DenialAccountID = "account_id"
	DenialAddress   = "address"
	DenialTempBan   = "tempban"
)

// Store recovery kinds.
const (
	RecoveryReconstructed = "reconstructed"
	RecoveryReset         = "reset"
)

// Metrics holds all Prometheus metrics for the ban engines. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	BansCreated        prometheus.Counter
	BansLifted         prometheus.Counter
	IdentityBackfills  prometheus.Counter
	LoginDenials       *prometheus.CounterVec
	ProtectedRefusals  prometheus.Counter
	TempBansPending    prometheus.Gauge
	TempBansApplied    prometheus.Counter
	TempBansReleased   prometheus.Counter
	TempBansExpired    prometheus.Counter
	StoreRecoveries    *prometheus.CounterVec
	StoreWriteFailures prometheus.Counter
	StoreReloads       prometheus.Counter
}

// New creates and registers all ban metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BansCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_bans_created_total",
			Help: "Total number of bans created",
		}),
		BansLifted: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_bans_lifted_total",
			Help: "Total number of bans lifted by an operator",
		}),
		IdentityBackfills: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_identity_backfills_total",
			Help: "Total number of ban records whose account id or address was filled at login",
		}),
		LoginDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banguard_login_denials_total",
			Help: "Total number of denied logins by matching key",
		}, []string{"kind"}),
		ProtectedRefusals: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_protected_refusals_total",
			Help: "Total number of operations refused because the target is allow-listed",
		}),
		TempBansPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "banguard_tempbans_pending",
			Help: "Number of temporary bans awaiting confirmation",
		}),
		TempBansApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_tempbans_applied_total",
			Help: "Total number of confirmed temporary bans",
		}),
		TempBansReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_tempbans_released_total",
			Help: "Total number of temporary bans released early",
		}),
		TempBansExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_tempbans_expired_total",
			Help: "Total number of temporary bans deactivated by the sweeper",
		}),
		StoreRecoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banguard_store_recoveries_total",
			Help: "Total number of data file repairs by kind",
		}, []string{"kind"}),
		StoreWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_store_write_failures_total",
			Help: "Total number of failed data file writes",
		}),
		StoreReloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "banguard_store_reloads_total",
			Help: "Total number of data file loads",
		}),
	}
}

func (m *Metrics) IncrementBansCreated() {
	if m == nil {
		return
	}
	m.BansCreated.Inc()
}

func (m *Metrics) IncrementBansLifted() {
	if m == nil {
		return
	}
	m.BansLifted.Inc()
}

func (m *Metrics) IncrementIdentityBackfills() {
	if m == nil {
		return
	}
	m.IdentityBackfills.Inc()
}

// IncrementLoginDenials counts a denied login by the key that matched.
func (m *Metrics) IncrementLoginDenials(kind string) {
	if m == nil {
		return
	}
	m.LoginDenials.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementProtectedRefusals() {
	if m == nil {
		return
	}
	m.ProtectedRefusals.Inc()
}

// SetTempBansPending reports the current number of pending confirmations.
func (m *Metrics) SetTempBansPending(n int) {
	if m == nil {
		return
	}
	m.TempBansPending.Set(float64(n))
}

func (m *Metrics) IncrementTempBansApplied() {
	if m == nil {
		return
	}
	m.TempBansApplied.Inc()
}

func (m *Metrics) IncrementTempBansReleased() {
	if m == nil {
		return
	}
	m.TempBansReleased.Inc()
}

func (m *Metrics) AddTempBansExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TempBansExpired.Add(float64(n))
}

func (m *Metrics) IncrementStoreRecoveries(kind string) {
	if m == nil {
		return
	}
	m.StoreRecoveries.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementStoreWriteFailures() {
	if m == nil {
		return
	}
	m.StoreWriteFailures.Inc()
}

func (m *Metrics) IncrementStoreReloads() {
	if m == nil {
		return
	}
	m.StoreReloads.Inc()
}
