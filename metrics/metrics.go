// Package metrics exports key ring activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/fernet/token"
)

const namespace = "fernet"

// Collector counts ring operations. Decryptions are labelled by the ring index of the
// key that succeeded, so an old key whose counter stops moving can be retired.
type Collector struct {
	encrypted *prometheus.CounterVec
	decrypted *prometheus.CounterVec
	rotated   *prometheus.CounterVec
}

var _ token.Observer = (*Collector)(nil)

// NewCollector registers the fernet counters with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		encrypted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_encrypted_total",
			Help:      "Tokens issued under the current key.",
		}, nil),
		decrypted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_decrypted_total",
			Help:      "Decrypt attempts by outcome and ring index of the key that opened the token.",
		}, []string{"result", "key_index"}),
		rotated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_rotated_total",
			Help:      "Token rotations by outcome.",
		}, []string{"result"}),
	}
	for _, col := range []prometheus.Collector{c.encrypted, c.decrypted, c.rotated} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) Encrypted() {
	c.encrypted.WithLabelValues().Inc()
}

func (c *Collector) Decrypted(index int) {
	if index < 0 {
		c.decrypted.WithLabelValues("invalid", "").Inc()
		return
	}
	c.decrypted.WithLabelValues("ok", strconv.Itoa(index)).Inc()
}

func (c *Collector) Rotated(ok bool) {
	c.rotated.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "invalid"
}
