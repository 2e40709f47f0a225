package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves reg in the OpenMetrics format and counts its own scrapes
// (promhttp_metric_handler_requests_total). A nil reg serves the default gatherer.
func HTTPHandler(reg *prom.Registry) http.Handler {
	var (
		gatherer   prom.Gatherer   = prom.DefaultGatherer
		registerer prom.Registerer = prom.DefaultRegisterer
	)
	if reg != nil {
		gatherer, registerer = reg, reg
	}
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
		Registry:          registerer,
	})
	return promhttp.InstrumentMetricHandler(registerer, handler)
}
