// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_proc_terminate_total",
		Help: "Signals sent to external tool process groups",
	}, []string{"signal", "result"}) // result=sent|error

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_proc_wait_total",
		Help: "Exit outcomes of terminated external tools",
	}, []string{"outcome"})
)

// IncProcTerminate records a signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminate.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated tool exited.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}
