package httptransport

import "expvar"

var (
	metricSessionCreateTotal  = expvar.NewInt("session_create_total")
	metricSessionCreateErrors = expvar.NewInt("session_create_errors_total")

	metricUserRegisterTotal = expvar.NewInt("user_register_total")
	metricForceEndTotal     = expvar.NewInt("admin_force_end_total")
)
