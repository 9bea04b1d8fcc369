package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(wsConnections, deliveriesTotal) }

var wsConnections = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Currently open websocket connections by role.",
	},
	[]string{"role"},
)

var deliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ws_deliveries_total",
		Help: "Outbound deliveries by recipient role and result.",
	},
	[]string{"role", "result"}, // result="sent"|"no_conn"|"error"
)

func ConnOpened(role string) { wsConnections.WithLabelValues(norm(role)).Inc() }
func ConnClosed(role string) { wsConnections.WithLabelValues(norm(role)).Dec() }

func IncDelivery(role, result string) {
	deliveriesTotal.WithLabelValues(norm(role), norm(result)).Inc()
}
