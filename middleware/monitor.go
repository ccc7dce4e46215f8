package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apoio_http_requests_total",
		Help: "Total de requisições HTTP por rota e status.",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apoio_http_request_duration_seconds",
		Help:    "Duração das requisições HTTP.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	activeStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "apoio_active_streams",
		Help: "Conexões SSE abertas por tipo.",
	}, []string{"stream"})

	guardDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apoio_guard_denials_total",
		Help: "Negações do guarda de rotas por motivo.",
	}, []string{"reason"})
)

// Monitor coleta contagem e latência por rota.
func Monitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		if status := c.GetString("guard_status"); status != "" && status != "allowed" {
			guardDenials.WithLabelValues(status).Inc()
		}
	}
}

// StreamOpened registra uma conexão SSE e devolve a função que a encerra.
func StreamOpened(kind string) (closed func()) {
	g := activeStreams.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

// GetMetrics expõe as métricas no formato Prometheus.
func GetMetrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
