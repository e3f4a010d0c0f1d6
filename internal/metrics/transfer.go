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
	// TransfersStarted tracks transfers offered, by role.
	TransfersStarted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfers",
			Name:      "started_total",
			Help:      "Total number of file transfers offered",
		},
		[]string{"role"}, // sender, receiver
	)

	// TransfersFinished tracks transfers that left the transferring state.
	TransfersFinished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfers",
			Name:      "finished_total",
			Help:      "Total number of file transfers that finished, by status",
		},
		[]string{"status"}, // complete, rejected, cancelled, errored
	)

	// TransferChunks tracks chunks sent/received.
	TransferChunks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfers",
			Name:      "chunks_total",
			Help:      "Total number of file chunks processed",
		},
		[]string{"direction"}, // sent, received
	)

	// TransferBytes tracks plaintext bytes transferred.
	TransferBytes = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfers",
			Name:      "bytes",
			Help:      "Total plaintext bytes per completed transfer",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 14),
		},
	)
)
