// Package metrics is a small Prometheus-compatible collector. It renders the
// text exposition format without pulling in prometheus/client_golang.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates counters, gauges and histograms.
type Collector struct {
	prefix     string
	counters   sync.Map // key -> *Counter
	gauges     sync.Map // key -> *Gauge
	histograms sync.Map // key -> *Histogram
	startTime  time.Time
}

// NewCollector creates a collector whose uptime metric is named
// <prefix>_uptime_seconds.
func NewCollector(prefix string) *Collector {
	return &Collector{prefix: prefix, startTime: time.Now()}
}

func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values. Buckets are
// cumulative; +Inf is implied by count.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func key(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns or creates a counter.
func (c *Collector) Counter(name, help, labels string) *Counter {
	if v, ok := c.counters.Load(key(name, labels)); ok {
		return v.(*Counter)
	}
	actual, _ := c.counters.LoadOrStore(key(name, labels), &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

// Gauge returns or creates a gauge.
func (c *Collector) Gauge(name, help, labels string) *Gauge {
	if v, ok := c.gauges.Load(key(name, labels)); ok {
		return v.(*Gauge)
	}
	actual, _ := c.gauges.LoadOrStore(key(name, labels), &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given upper bounds.
func (c *Collector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	if v, ok := c.histograms.Load(key(name, labels)); ok {
		return v.(*Histogram)
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	hb := make([]histBucket, 0, len(bounds))
	for _, b := range bounds {
		if !math.IsInf(b, 1) {
			hb = append(hb, histBucket{le: b})
		}
	}
	actual, _ := c.histograms.LoadOrStore(key(name, labels), &Histogram{name: name, help: help, labels: labels, buckets: hb})
	return actual.(*Histogram)
}

// Handler renders all metrics in Prometheus text format.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.WriteTo(w)
	}
}

// WriteTo writes the exposition text. Series are sorted by name and labels so
// output is stable between scrapes.
func (c *Collector) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	uptime := c.prefix + "_uptime_seconds"
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n", uptime, int64(c.Uptime().Seconds()))

	var counters []*Counter
	c.counters.Range(func(_, v any) bool { counters = append(counters, v.(*Counter)); return true })
	sort.Slice(counters, func(i, j int) bool {
		return key(counters[i].name, counters[i].labels) < key(counters[j].name, counters[j].labels)
	})
	lastName := ""
	for _, ctr := range counters {
		if ctr.name != lastName {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", ctr.name, ctr.help, ctr.name)
			lastName = ctr.name
		}
		fmt.Fprintf(&sb, "%s %d\n", series(ctr.name, ctr.labels), ctr.Value())
	}

	var gauges []*Gauge
	c.gauges.Range(func(_, v any) bool { gauges = append(gauges, v.(*Gauge)); return true })
	sort.Slice(gauges, func(i, j int) bool {
		return key(gauges[i].name, gauges[i].labels) < key(gauges[j].name, gauges[j].labels)
	})
	lastName = ""
	for _, g := range gauges {
		if g.name != lastName {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
			lastName = g.name
		}
		fmt.Fprintf(&sb, "%s %d\n", series(g.name, g.labels), g.Value())
	}

	var hists []*Histogram
	c.histograms.Range(func(_, v any) bool { hists = append(hists, v.(*Histogram)); return true })
	sort.Slice(hists, func(i, j int) bool {
		return key(hists[i].name, hists[i].labels) < key(hists[j].name, hists[j].labels)
	})
	lastName = ""
	for _, h := range hists {
		if h.name != lastName {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
			lastName = h.name
		}
		h.writeTo(&sb)
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (h *Histogram) writeTo(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, b := range h.buckets {
		le := `le="` + strconv.FormatFloat(b.le, 'g', -1, 64) + `"`
		fmt.Fprintf(sb, "%s %d\n", series(h.name+"_bucket", joinLabels(h.labels, le)), b.count)
	}
	fmt.Fprintf(sb, "%s %d\n", series(h.name+"_bucket", joinLabels(h.labels, `le="+Inf"`)), h.count)
	fmt.Fprintf(sb, "%s %s\n", series(h.name+"_sum", h.labels), strconv.FormatFloat(h.sum, 'f', -1, 64))
	fmt.Fprintf(sb, "%s %d\n", series(h.name+"_count", h.labels), h.count)
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func joinLabels(a, b string) string {
	if a == "" {
		return b
	}
	return a + "," + b
}
