// Package metrics содержит Prometheus-метрики сервисов лицензирования.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "licensing"

// Metrics — набор счётчиков доменных операций. Методы безопасны для nil-получателя.
type Metrics struct {
	Compensations     *prometheus.CounterVec
	Activations       *prometheus.CounterVec
	LicenseTransition *prometheus.CounterVec
	FeatureChecks     *prometheus.CounterVec
	RemindersSent     *prometheus.CounterVec
	DemoExpired       prometheus.Counter
	Notifications     *prometheus.CounterVec
}

// New регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_compensations_total",
			Help:      "Compensating deletions of identity provider accounts.",
		}, []string{"result"}),
		Activations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_activations_total",
			Help:      "License activation attempts by outcome.",
		}, []string{"result"}),
		LicenseTransition: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_transitions_total",
			Help:      "License status transitions.",
		}, []string{"from", "to"}),
		FeatureChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_feature_checks_total",
			Help:      "Demo feature access checks by outcome.",
		}, []string{"result"}),
		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_reminders_sent_total",
			Help:      "Demo expiry reminders by threshold label.",
		}, []string{"label"}),
		DemoExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_sessions_expired_total",
			Help:      "Demo sessions moved to EXPIRED.",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications handed to the broker by template and outcome.",
		}, []string{"template", "result"}),
	}
}

// Compensation учитывает попытку компенсации.
func (m *Metrics) Compensation(ok bool) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(result(ok)).Inc()
}

// Activation учитывает исход активации.
func (m *Metrics) Activation(outcome string) {
	if m == nil {
		return
	}
	m.Activations.WithLabelValues(outcome).Inc()
}

// Transition учитывает переход состояния лицензии.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.LicenseTransition.WithLabelValues(from, to).Inc()
}

// FeatureCheck учитывает проверку доступа к функции.
func (m *Metrics) FeatureCheck(outcome string) {
	if m == nil {
		return
	}
	m.FeatureChecks.WithLabelValues(outcome).Inc()
}

// Reminder учитывает отправленное напоминание.
func (m *Metrics) Reminder(label string) {
	if m == nil {
		return
	}
	m.RemindersSent.WithLabelValues(label).Inc()
}

// Expired учитывает истёкшую демо-сессию.
func (m *Metrics) Expired() {
	if m == nil {
		return
	}
	m.DemoExpired.Inc()
}

// Notification учитывает публикацию уведомления.
func (m *Metrics) Notification(template string, ok bool) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(template, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
