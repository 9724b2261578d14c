// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfcore_capture_messages",
		Help: "Count of capture messages received, by type.",
	}, []string{"type"})

	bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_capture_bytes",
		Help: "Count of bytes read from capture connections.",
	})

	protocolErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_capture_protocol_errors",
		Help: "Count of connections closed for protocol violations.",
	})

	statesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfcore_capture_states_dropped",
		Help: "Count of fighter states dropped for unknown entry IDs.",
	})

	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfcore_capture_connections",
		Help: "Count of active capture connections.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		messagesReceived,
		bytesReceived,
		protocolErrors,
		statesDropped,
		connectionsActive,
	)
}
