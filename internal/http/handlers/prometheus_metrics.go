package handlers

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "loghistory/internal/db"
)

var (
	eventsIngested *prometheus.CounterVec
	queriesTotal   *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
)

func InitPrometheusMetrics() {
	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loghistory",
			Name:      "events_ingested_total",
			Help:      "Total number of appended audit events.",
		},
		[]string{"logger", "level"},
	)
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loghistory",
			Name:      "queries_total",
			Help:      "Total number of log queries served.",
		},
		[]string{"type"},
	)
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loghistory",
			Name:      "query_duration_seconds",
			Help:      "Histogram of log query durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"type"},
	)
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loghistory",
		Name:      "query_cache_hits_total",
		Help:      "Log queries answered from the result cache.",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loghistory",
		Name:      "query_cache_misses_total",
		Help:      "Log queries that had to be computed.",
	})
	prometheus.MustRegister(eventsIngested, queriesTotal, queryDuration, cacheHits, cacheMisses)
}

func observeQuery(queryType string, cached bool, d time.Duration) {
	queriesTotal.WithLabelValues(queryType).Inc()
	queryDuration.WithLabelValues(queryType).Observe(d.Seconds())
	if cached {
		cacheHits.Inc()
	} else {
		cacheMisses.Inc()
	}
}

// LoggerMetricsHandler exposes the prometheus registry filtered down to
// one logger, authenticated by API key, so a producing service can scrape
// only its own ingest counters.
func LoggerMetricsHandler(store *dbpkg.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		apiKeyValue := string(ctx.QueryArgs().Peek("api-key"))
		if apiKeyValue == "" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString("missing api-key query parameter")
			return
		}

		var key dbpkg.APIKey
		if err := store.DB.Where("key = ? AND active = ?", apiKeyValue, true).First(&key).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid API key")
				return
			}
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}

		loggerSlug := string(ctx.QueryArgs().Peek("logger"))
		if loggerSlug == "" {
			loggerSlug = key.Name
		}

		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}

		filtered := make([]*dto.MetricFamily, 0, len(metricFamilies))
		for _, mf := range metricFamilies {
			hasLoggerLabel := false
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "logger" {
						hasLoggerLabel = true
						break
					}
				}
				if hasLoggerLabel {
					break
				}
			}

			if !hasLoggerLabel {
				filtered = append(filtered, mf)
				continue
			}

			var kept []*dto.Metric
			for _, m := range mf.GetMetric() {
				include := false
				for _, l := range m.GetLabel() {
					if l.GetName() == "logger" && l.GetValue() == loggerSlug {
						include = true
						break
					}
				}
				if include {
					kept = append(kept, m)
				}
			}

			if len(kept) == 0 {
				continue
			}

			filtered = append(filtered, &dto.MetricFamily{
				Name:   mf.Name,
				Help:   mf.Help,
				Type:   mf.Type,
				Metric: kept,
			})
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
		for _, mf := range filtered {
			if err := encoder.Encode(mf); err != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("failed to encode metrics")
				return
			}
		}

		ctx.SetContentType(string(expfmt.FmtText))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}
