// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks the number of currently connected clients.
	ConnectionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Number of currently connected relay clients",
		},
	)

	// ConnectionsTotal tracks every connection accepted since startup.
	ConnectionsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "total",
			Help:      "Total number of relay connections accepted",
		},
	)

	// IDAllocRetriesTotal tracks retries spent finding a free relay ID.
	IDAllocRetriesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "id_alloc",
			Name:      "retries_total",
			Help:      "Total number of retries while allocating a relay ID",
		},
	)

	// IDAllocExhaustedTotal tracks ID allocation giving up (503).
	IDAllocExhaustedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "id_alloc",
			Name:      "exhausted_total",
			Help:      "Total number of connections rejected because ID allocation was exhausted",
		},
	)

	// MessagesRelayedTotal counts messages relayed, by wire message tag.
	MessagesRelayedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "relayed_total",
			Help:      "Total number of messages relayed between clients, labeled by message tag",
		},
		[]string{"msg"},
	)

	// RelayErrorsTotal counts relay failures, labeled by reason.
	RelayErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Total number of relay errors, labeled by reason",
		},
		[]string{"reason"},
	)

	// PumpDuration tracks how long a connection's read/write pump runs.
	PumpDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pump",
			Name:      "duration_seconds",
			Help:      "Duration a connection's pump loop ran for, in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)

// Relay error reasons used to label RelayErrorsTotal.
const (
	ReasonNoSuchID         = "no_such_id"
	ReasonDeliveryDropped  = "delivery_dropped"
	ReasonWireError        = "wire_error"
)
