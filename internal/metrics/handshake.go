// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandshakesStarted tracks handshakes started, by role (initiator/responder).
	HandshakesStarted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshakes",
			Name:      "started_total",
			Help:      "Total number of handshakes started",
		},
		[]string{"role"},
	)

	// HandshakesCompleted tracks sessions whose handshake and SAS
	// confirmation both completed (counted when the session becomes ACTIVE).
	HandshakesCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshakes",
			Name:      "completed_total",
			Help:      "Total number of handshakes completed",
		},
		[]string{"role"},
	)

	// HandshakesReset tracks handshakes that ended in a reset, by reason.
	HandshakesReset = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshakes",
			Name:      "reset_total",
			Help:      "Total number of handshakes reset before completion, by reason",
		},
		[]string{"reason"},
	)

	// HandshakeDuration tracks time from session creation to HANDSHAKE_COMPLETE.
	HandshakeDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handshakes",
			Name:      "duration_seconds",
			Help:      "Handshake duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// SASOutcomes tracks how SAS verification resolved.
	SASOutcomes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sas",
			Name:      "outcomes_total",
			Help:      "SAS verification outcomes",
		},
		[]string{"outcome"}, // confirmed, denied_local, denied_remote
	)
)
