package auction

import "expvar"

var (
	metricSessionsCreated = expvar.NewInt("auction_sessions_created_total")
	metricSessionsEnded   = expvar.NewInt("auction_sessions_ended_total")
	metricSessionsReaped  = expvar.NewInt("auction_sessions_reaped_total")
	metricMessagesTotal   = expvar.NewInt("auction_messages_total")
	metricFallbackTotal   = expvar.NewInt("auction_fallback_messages_total")
)
