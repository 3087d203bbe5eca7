// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signerrelay"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	signersCreated  *prometheus.CounterVec
	signerPolls     *prometheus.CounterVec
	signIns         *prometheus.CounterVec
	casts           *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		signersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signers",
			Name:      "created_total",
			Help:      "Signer creation attempts by outcome.",
		}, []string{"outcome"}),
		signerPolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signers",
			Name:      "polls_total",
			Help:      "Signer polls by reported state or error outcome.",
		}, []string{"result"}),
		signIns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signin",
			Name:      "verifications_total",
			Help:      "Sign-in verifications by outcome.",
		}, []string{"outcome"}),
		casts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "casts",
			Name:      "published_total",
			Help:      "Cast publish attempts by outcome.",
		}, []string{"outcome"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) SignerCreated(err error) {
	if m == nil {
		return
	}
	m.signersCreated.WithLabelValues(Outcome(err)).Inc()
}

// SignerPolled records the state a poll reported, or the error outcome.
func (m *Metrics) SignerPolled(state string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		state = Outcome(err)
	}
	m.signerPolls.WithLabelValues(state).Inc()
}

func (m *Metrics) SignIn(err error) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) CastPublished(err error) {
	if m == nil {
		return
	}
	m.casts.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Request(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

var outcomes = []struct {
	err   error
	label string
}{
	{common.ErrUpstreamUnavailable, "upstream_unavailable"},
	{common.ErrUpstreamVerification, "upstream_verification"},
	{common.ErrQuotaExceeded, "quota_exceeded"},
	{common.ErrorNotFound, "not_found"},
	{common.ErrInvalidSignature, "invalid_signature"},
	{common.ErrChallengeExpired, "challenge_expired"},
	{common.ErrChallengeReused, "challenge_reused"},
	{common.ErrorUnauthorized, "unauthorized"},
	{common.ErrTerminalState, "terminal_state"},
	{common.ErrEmptyContent, "empty_content"},
	{common.ErrContentTooLong, "content_too_long"},
	{common.ErrPublishFailed, "publish_failed"},
	{common.ErrorValidation, "validation"},
}

// Outcome turns an error into a low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.label
		}
	}
	return "error"
}
