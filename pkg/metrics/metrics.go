// Package metrics counts JOSE operations with Prometheus.
//
// A Collector is a jose.Observer, so it can be passed to the WithObserver
// option of the jws, jwe and jwt packages:
//
//	c, err := metrics.New(prometheus.DefaultRegisterer)
//	...
//	err = sig.Verify(jws.WithKey(key), jws.WithObserver(c))
package metrics

import (
	"errors"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/prometheus/client_golang/prometheus"
)

// Values of the "result" label.
const (
	ResultOK                    = "ok"
	ResultAuthenticationFailure = "authentication_failure"
	ResultUnsupportedAlgorithm  = "unsupported_algorithm"
	ResultInvalidKey            = "invalid_key"
	ResultKeyMismatch           = "key_mismatch"
	ResultInvalidHeader         = "invalid_header"
	ResultMalformedToken        = "malformed_token"
	ResultError                 = "error"
)

// UnknownAlgorithm replaces unregistered "alg" values in the "algorithm"
// label, which would otherwise be chosen by whoever sent the input.
const UnknownAlgorithm = "unknown"

// Collector counts operations by operation, algorithm and result.
type Collector struct {
	operations *prometheus.CounterVec
}

var _ jose.Observer = (*Collector)(nil)

// New creates a Collector and registers it with reg. A nil reg leaves it
// unregistered.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jose",
				Name:      "operations_total",
				Help:      "Number of JOSE sign, verify, encrypt and decrypt operations by result.",
			},
			[]string{"operation", "algorithm", "result"},
		),
	}
	if reg != nil {
		if err := reg.Register(c.operations); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe implements jose.Observer.
func (c *Collector) Observe(op jose.Operation, alg string, err error) {
	if _, lerr := jwa.Lookup(alg); lerr != nil {
		alg = UnknownAlgorithm
	}
	c.operations.WithLabelValues(string(op), alg, Result(err)).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
}

// Result classifies an error by the jose sentinel it wraps.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, jose.ErrAuthenticationFailure):
		return ResultAuthenticationFailure
	case errors.Is(err, jose.ErrUnsupportedAlgorithm):
		return ResultUnsupportedAlgorithm
	case errors.Is(err, jose.ErrKeyMismatch):
		return ResultKeyMismatch
	case errors.Is(err, jose.ErrInvalidKey):
		return ResultInvalidKey
	case errors.Is(err, jose.ErrInvalidHeader):
		return ResultInvalidHeader
	case errors.Is(err, jose.ErrMalformedToken):
		return ResultMalformedToken
	default:
		return ResultError
	}
}
