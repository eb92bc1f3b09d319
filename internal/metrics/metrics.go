package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the ingestion counters. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Sentences    *prometheus.CounterVec
	Suppressed   prometheus.Counter
	Observations prometheus.Counter
	ParseErrors  prometheus.Counter
	AltitudeM    prometheus.Gauge
}

// New registers the ingestion metrics against reg, defaulting to the global
// registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Sentences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kismet_sentences_total",
			Help: "Sentences received from the Kismet server, labeled by kind.",
		}, []string{"kind"}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kismet_burst_suppressed_total",
			Help: "Sentences discarded during the initial history replay burst.",
		}),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kismet_observations_recorded_total",
			Help: "Observations durably appended to the output file.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kismet_parse_errors_total",
			Help: "Sentences with a known marker whose fields could not be decoded.",
		}),
		AltitudeM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kismet_altitude_meters",
			Help: "Most recent altitude sample.",
		}),
	}
	for _, col := range []prometheus.Collector{c.Sentences, c.Suppressed, c.Observations, c.ParseErrors, c.AltitudeM} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) Sentence(kind string) {
	if c == nil {
		return
	}
	c.Sentences.WithLabelValues(kind).Inc()
}

func (c *Collector) Suppress() {
	if c == nil {
		return
	}
	c.Suppressed.Inc()
}

func (c *Collector) Recorded(altM float64) {
	if c == nil {
		return
	}
	c.Observations.Inc()
	c.AltitudeM.Set(altM)
}

func (c *Collector) ParseError() {
	if c == nil {
		return
	}
	c.ParseErrors.Inc()
}

// Handler serves /metrics and, when status is non-nil, /status as JSON.
func (c *Collector) Handler(status func() any) http.Handler {
	mux := http.NewServeMux()
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if status != nil {
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			_ = enc.Encode(status())
		})
	}
	return mux
}

// Serve runs the HTTP listener until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("metrics listening on %s", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
