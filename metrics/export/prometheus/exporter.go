package prometheus

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/plextask/keygate"
	"github.com/plextask/keygate/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() keygate.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders keygate metrics in the Prometheus text format.
type Exporter struct {
	source metricsSource
}

func NewExporter(engine *keygate.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource reads from anything exposing a snapshot and the
// audit drop count.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render at the mount point chosen by the caller.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		p.write(&buf)
		w.Header().Set("Content-Type", contentType)
		_, _ = buf.WriteTo(w)
	})
}

// Render returns the current metrics, or "" when metrics are disabled.
func (p *Exporter) Render() string {
	var b strings.Builder
	p.write(&b)
	return b.String()
}

func (p *Exporter) write(w io.Writer) {
	if p == nil || p.source == nil {
		return
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, def := range internaldefs.CounterDefs {
		header(w, def.Name, def.Help, "counter")
		fmt.Fprintf(w, "%s %d\n", def.Name, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		header(w, def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", def.Name, le, cumulative[i])
		}
		fmt.Fprintf(w, "%s_count %d\n", def.Name, cumulative[len(cumulative)-1])
		// Only bucket counts are kept, so the sum is unknown.
		fmt.Fprintf(w, "%s_sum 0\n", def.Name)
	}

	const droppedName = "keygate_audit_dropped_total"
	header(w, droppedName, "Audit events dropped because the dispatcher buffer was full.", "counter")
	fmt.Fprintf(w, "%s %d\n", droppedName, dropped)
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func header(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}
