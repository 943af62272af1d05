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
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/janm-relay/pinger/internal/logger"
	"github.com/janm-relay/pinger/internal/metrics"
	"github.com/janm-relay/pinger/internal/wire"
)

const (
	unsupportedMessageType = "unsupported message type, only text messages are supported"
)

// Connection runs one client's pump: it owns the mailbox Registry.Add
// assigned it, decodes inbound frames, dispatches them through the
// registry, and writes whatever lands in its own mailbox back to the
// socket. Exactly one goroutine ever calls WriteJSON on ws, satisfying
// gorilla's single-writer requirement.
type Connection struct {
	id       wire.Id
	ws       *websocket.Conn
	registry *Registry
	mailbox  *Mailbox
	log      logger.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
}

type inboundEvent struct {
	msg     wire.ClientUpMessage
	err     error
	nonText bool
}

// Serve pre-loads the connected notice, then runs the pump until the read
// side observes end-of-stream or ctx is canceled. On return it calls
// Registry.Remove exactly once.
func (c *Connection) Serve(ctx context.Context) {
	defer c.registry.Remove(c.id)
	defer func() { _ = c.ws.Close() }()

	if err := c.mailbox.enqueue(wire.DownFromServer(wire.Connected(c.id))); err != nil {
		c.log.Error("failed to queue connected notice", logger.Error(err))
		return
	}

	inbound := make(chan inboundEvent)
	go c.readLoop(inbound)

	for {
		select {
		case ev, ok := <-inbound:
			if !ok {
				return
			}
			c.handleInbound(ev)
		case down := <-c.mailbox.receive():
			c.writeDown(down)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Connection) readLoop(inbound chan<- inboundEvent) {
	defer close(inbound)

	for {
		if c.readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		if msgType != websocket.TextMessage {
			inbound <- inboundEvent{nonText: true}
			continue
		}

		var up wire.ClientUpMessage
		if err := json.Unmarshal(data, &up); err != nil {
			inbound <- inboundEvent{err: err}
			continue
		}

		inbound <- inboundEvent{msg: up}
	}
}

func (c *Connection) handleInbound(ev inboundEvent) {
	switch {
	case ev.nonText:
		metrics.RelayErrorsTotal.WithLabelValues(metrics.ReasonWireError).Inc()
		c.enqueueLocalError(unsupportedMessageType)
	case ev.err != nil:
		metrics.RelayErrorsTotal.WithLabelValues(metrics.ReasonWireError).Inc()
		c.enqueueLocalError(wire.ErrMalformed.Error())
	default:
		c.dispatch(ev.msg)
	}
}

func (c *Connection) dispatch(msg wire.ClientUpMessage) {
	err := c.registry.Send(msg.To, c.id, msg.Msg)
	switch {
	case err == nil:
		metrics.MessagesRelayedTotal.WithLabelValues(string(msg.Msg.Msg)).Inc()
	case errors.Is(err, ErrNoSuchID):
		metrics.RelayErrorsTotal.WithLabelValues(metrics.ReasonNoSuchID).Inc()
		if enqErr := c.mailbox.enqueue(wire.DownFromServer(wire.NoSuchID(msg.To))); enqErr != nil {
			c.log.Warn("could not report no_such_id to sender", logger.Error(enqErr))
		}
	default:
		metrics.RelayErrorsTotal.WithLabelValues(metrics.ReasonDeliveryDropped).Inc()
		c.log.Info("delivery dropped", logger.Uint16("to", uint16(msg.To)))
	}
}

func (c *Connection) enqueueLocalError(details string) {
	if err := c.mailbox.enqueue(wire.DownFromServer(wire.ServerError(details))); err != nil {
		c.log.Warn("could not queue error report", logger.Error(err))
	}
}

func (c *Connection) writeDown(down wire.ClientDownMessage) {
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteJSON(down); err != nil {
		c.log.Warn("write failed", logger.Error(err))
	}
}
