package metrics

import "github.com/prometheus/client_golang/prometheus"

// WriterCounts is a snapshot of cumulative writer counters.
type WriterCounts struct {
	Inserts int64
	Updates int64
	Errors  int64
	Flushes int64
}

// RegisterWriter exports the counters returned by counts under the writer
// label name. counts is called on every scrape and must be cheap.
func RegisterWriter(reg prometheus.Registerer, name string, counts func() WriterCounts) error {
	labels := prometheus.Labels{"writer": name}

	fields := []struct {
		metric string
		help   string
		value  func(WriterCounts) int64
	}{
		{"rows_inserted_total", "Rows inserted by the writer.", func(c WriterCounts) int64 { return c.Inserts }},
		{"rows_updated_total", "Existing rows updated by the writer.", func(c WriterCounts) int64 { return c.Updates }},
		{"errors_total", "Failed batch flushes.", func(c WriterCounts) int64 { return c.Errors }},
		{"flushes_total", "Batch flushes attempted.", func(c WriterCounts) int64 { return c.Flushes }},
	}

	for _, f := range fields {
		value := f.value
		collector := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "writer",
			Name:        f.metric,
			Help:        f.help,
			ConstLabels: labels,
		}, func() float64 { return float64(value(counts())) })

		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
