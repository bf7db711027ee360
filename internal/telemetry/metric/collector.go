package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// KeystoreSource reports the state of the active keystore snapshot.
type KeystoreSource interface {
	TokenCount() int
	KeyBits() int
	LoadedAt() time.Time
}

// Collector reports keystore state at scrape time.
type Collector struct {
	source KeystoreSource

	tokens   *prometheus.Desc
	keyBits  *prometheus.Desc
	loadedAt *prometheus.Desc
}

// NewCollector creates a keystore collector.
func NewCollector(source KeystoreSource) *Collector {
	return &Collector{
		source: source,
		tokens: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "keystore", "tokens"),
			"Number of v2 service tokens in the active snapshot.", nil, nil),
		keyBits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "keystore", "rsa_key_bits"),
			"Size of the RSA modulus used for v1 votes.", nil, nil),
		loadedAt: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "keystore", "loaded_timestamp_seconds"),
			"Unix time the active snapshot was installed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tokens
	ch <- c.keyBits
	ch <- c.loadedAt
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.GaugeValue, float64(c.source.TokenCount()))
	ch <- prometheus.MustNewConstMetric(c.keyBits, prometheus.GaugeValue, float64(c.source.KeyBits()))
	ch <- prometheus.MustNewConstMetric(c.loadedAt, prometheus.GaugeValue, float64(c.source.LoadedAt().Unix()))
}
