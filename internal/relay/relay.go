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

package relay

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/janm-relay/pinger/internal/logger"
	"github.com/janm-relay/pinger/internal/metrics"
	"github.com/janm-relay/pinger/internal/wire"
)

// Relay upgrades incoming HTTP requests to WebSocket connections and runs
// a Connection pump for each one against a shared Registry.
type Relay struct {
	registry *Registry
	upgrader websocket.Upgrader
	log      logger.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Config bounds the id space, mailbox capacity, and pump timeouts a Relay
// is built with.
type Config struct {
	IDMin             wire.Id
	IDMax             wire.Id
	IDAllocMaxRetries int
	MailboxCapacity   int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// New builds a Relay with its own Registry.
func New(cfg Config, log logger.Logger) *Relay {
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}

	return &Relay{
		registry: NewRegistry(cfg.IDMin, cfg.IDMax, cfg.IDAllocMaxRetries, cfg.MailboxCapacity),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:          log,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ConnectionCount reports the number of currently registered connections,
// for wiring into a health check.
func (r *Relay) ConnectionCount() int {
	return r.registry.Count()
}

// Handler returns the http.Handler clients dial to join the relay. An id
// is reserved before the protocol upgrade runs, so exhaustion is reported
// as a plain HTTP 503 rather than an upgraded-then-dropped connection.
func (r *Relay) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id, mailbox, err := r.registry.Add()
		if err != nil {
			http.Error(w, "no id available", http.StatusServiceUnavailable)
			return
		}

		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.registry.Remove(id)
			return
		}

		metrics.ConnectionsActive.Inc()
		metrics.ConnectionsTotal.Inc()
		defer metrics.ConnectionsActive.Dec()

		connLog := r.log.WithFields(
			logger.String("trace_id", uuid.New().String()),
			logger.Uint16("id", uint16(id)),
		)

		start := time.Now()
		c := &Connection{
			id:           id,
			ws:           conn,
			registry:     r.registry,
			mailbox:      mailbox,
			log:          connLog,
			readTimeout:  r.readTimeout,
			writeTimeout: r.writeTimeout,
		}
		c.Serve(req.Context())
		metrics.PumpDuration.Observe(time.Since(start).Seconds())
	})
}
