// Package metrics exposes Prometheus instruments for serving and training.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records prediction and training metrics.
type Recorder struct {
	predictions      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	trainingRMSE     prometheus.Gauge
	trainingExamples prometheus.Gauge
	datasetSymbols   prometheus.Gauge
	datasetDropped   *prometheus.GaugeVec
	journalPruned    prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpredictor_predictions_total",
				Help: "Predictions served by source",
			},
			[]string{"source"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpredictor_prediction_duration_seconds",
				Help:    "Time spent producing a prediction",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"source"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpredictor_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "method", "status"},
		),
		trainingRMSE: f.NewGauge(prometheus.GaugeOpts{
			Name: "stockpredictor_model_rmse",
			Help: "Held-out RMSE of the loaded model",
		}),
		trainingExamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "stockpredictor_model_train_examples",
			Help: "Training examples used by the loaded model",
		}),
		datasetSymbols: f.NewGauge(prometheus.GaugeOpts{
			Name: "stockpredictor_dataset_symbols",
			Help: "Symbols in the loaded dataset",
		}),
		datasetDropped: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpredictor_dataset_dropped_rows",
				Help: "Rows dropped while loading the dataset",
			},
			[]string{"reason"},
		),
		journalPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "stockpredictor_journal_pruned_total",
			Help: "Journal entries removed by retention",
		}),
	}
}

// ObservePrediction records one served prediction.
func (r *Recorder) ObservePrediction(source string, elapsed time.Duration) {
	r.predictions.WithLabelValues(source).Inc()
	r.latency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request.
func (r *Recorder) ObserveRequest(route, method, status string) {
	r.httpRequests.WithLabelValues(route, method, status).Inc()
}

// SetModel records the loaded model's evaluation.
func (r *Recorder) SetModel(rmse float64, trainExamples int) {
	r.trainingRMSE.Set(rmse)
	r.trainingExamples.Set(float64(trainExamples))
}

// SetDataset records the shape of the loaded dataset.
func (r *Recorder) SetDataset(symbols, badSymbol, badDate, badClose, duplicate int) {
	r.datasetSymbols.Set(float64(symbols))
	r.datasetDropped.WithLabelValues("bad_symbol").Set(float64(badSymbol))
	r.datasetDropped.WithLabelValues("bad_date").Set(float64(badDate))
	r.datasetDropped.WithLabelValues("bad_close").Set(float64(badClose))
	r.datasetDropped.WithLabelValues("duplicate").Set(float64(duplicate))
}

// AddPruned counts journal rows removed by retention.
func (r *Recorder) AddPruned(n int64) {
	r.journalPruned.Add(float64(n))
}
