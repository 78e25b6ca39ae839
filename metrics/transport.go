/* Copyright (c) 2019 Gregor Riepl
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Counters and gauges tracking Server/Session/Connection activity. Every
// vector is labelled by "identifier" where that makes sense.
var (
	ConnectionsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonstream_connections_added",
			Help: "Total number of authorized sessions added, by identifier.",
		},
		[]string{"identifier"},
	)
	ConnectionsRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonstream_connections_removed",
			Help: "Total number of sessions removed, by identifier.",
		},
		[]string{"identifier"},
	)
	ConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jsonstream_connections_active",
			Help: "Number of currently authorized sessions, by identifier.",
		},
		[]string{"identifier"},
	)
	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonstream_messages_received",
			Help: "Total number of messages delivered to Server.MessageReceived.",
		},
		[]string{"identifier"},
	)
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonstream_messages_sent",
			Help: "Total number of messages written to a Session's stream.",
		},
		[]string{"identifier"},
	)
	AuthorizationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonstream_authorization_failures",
			Help: "Total number of sessions that failed authorization.",
		},
		[]string{},
	)
	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonstream_validation_failures",
			Help: "Total number of objects that failed schema validation, by direction.",
		},
		[]string{"direction"},
	)
)

func init() {
	MustRegister(ConnectionsAdded)
	MustRegister(ConnectionsRemoved)
	MustRegister(ConnectionsActive)
	MustRegister(MessagesReceived)
	MustRegister(MessagesSent)
	MustRegister(AuthorizationFailures)
	MustRegister(ValidationFailures)
}
