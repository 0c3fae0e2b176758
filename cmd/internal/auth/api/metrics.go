package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts auth outcomes. All methods are nil-safe so the handler
// works without a registry wired in (tests, smoke runs).
type Metrics struct {
	logins    *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	revokes   *prometheus.CounterVec
	resets    *prometheus.CounterVec
}

// NewMetrics registers the auth counters on reg. A nil reg falls back to
// the default registerer; duplicate registrations reuse the existing
// collectors instead of failing.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wicket_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wicket_refreshes_total",
			Help: "Refresh attempts by result.",
		}, []string{"result"}),
		revokes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wicket_revocations_total",
			Help: "Grant revocations by cause.",
		}, []string{"cause"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wicket_password_resets_total",
			Help: "Password reset flow events.",
		}, []string{"event"}),
	}

	for _, c := range []*prometheus.CounterVec{m.logins, m.refreshes, m.revokes, m.resets} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

func (m *Metrics) login(result string) {
	if m != nil && m.logins != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil && m.refreshes != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) revoke(cause string) {
	if m != nil && m.revokes != nil {
		m.revokes.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) reset(event string) {
	if m != nil && m.resets != nil {
		m.resets.WithLabelValues(event).Inc()
	}
}
