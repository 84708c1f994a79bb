package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "marco"

// Metrics exposes counters/histograms for the onboarding pipeline.
// All methods are nil-safe so components can run without a registry.
type Metrics struct {
	inboundTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	stepErrorsTotal  *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	deploysTotal     *prometheus.CounterVec
	deployLatency    *prometheus.HistogramVec
	siteEditsTotal   *prometheus.CounterVec
	expiredTotal     prometheus.Counter
	activationsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Inbound carrier webhooks by provider and outcome",
		}, []string{"provider", "result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Conversation state transitions",
		}, []string{"from", "to"}),
		stepErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "step_errors_total",
			Help:      "Aborted conversation steps by state",
		}, []string{"state"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound SMS sends by carrier and status",
		}, []string{"carrier", "status"}),
		deploysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sites",
			Name:      "deploys_total",
			Help:      "Site deployments by mode and status",
		}, []string{"mode", "status"}),
		deployLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sites",
			Name:      "deploy_latency_seconds",
			Help:      "Latency of site deployments",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		siteEditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sites",
			Name:      "edits_total",
			Help:      "Active-mode edit turns by outcome",
		}, []string{"result"}),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "expired_total",
			Help:      "Drafts expired by the sweep",
		}),
		activationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "activations_total",
			Help:      "Conversations moved to active by source",
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal, m.transitionsTotal, m.stepErrorsTotal, m.outboundTotal,
		m.deploysTotal, m.deployLatency, m.siteEditsTotal, m.expiredTotal, m.activationsTotal,
	)
	return m
}

func (m *Metrics) ObserveInbound(provider, result string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveStepError(state string) {
	if m == nil {
		return
	}
	m.stepErrorsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveOutbound(carrier, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(carrier, status).Inc()
}

func (m *Metrics) ObserveDeploy(mode, status string, seconds float64) {
	if m == nil {
		return
	}
	m.deploysTotal.WithLabelValues(mode, status).Inc()
	m.deployLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *Metrics) ObserveSiteEdit(result string) {
	if m == nil {
		return
	}
	m.siteEditsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expiredTotal.Add(float64(count))
}

func (m *Metrics) ObserveActivation(source string) {
	if m == nil {
		return
	}
	m.activationsTotal.WithLabelValues(source).Inc()
}
