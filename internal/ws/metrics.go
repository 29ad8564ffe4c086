package ws

import "expvar"

var (
	metricConnections = expvar.NewInt("ws_connections_current")
	metricEvictions   = expvar.NewInt("ws_evictions_total")
	metricRateLimited = expvar.NewInt("ws_rate_limited_total")
	metricEventsSent  = expvar.NewInt("ws_events_sent_total")
)
