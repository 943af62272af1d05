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

// Package exchange implements the client-side state machines that drive a
// single ping exchange: the initiating side (Outgoing) and the responding
// side (Incoming) of the same handshake.
package exchange

import (
	"fmt"

	"github.com/janm-relay/pinger/crypto/keys"
	"github.com/janm-relay/pinger/internal/envelope"
	"github.com/janm-relay/pinger/internal/wire"
)

// OutgoingState names where an initiated exchange stands.
type OutgoingState int

const (
	OutgoingNone OutgoingState = iota
	OutgoingAwaitingDecision
	OutgoingAwaitingAck
)

// Outgoing drives one client's side of requesting a ping exchange with a
// peer: it holds the ephemeral secret and the position to send until the
// peer accepts, rejects, or the server reports the peer unreachable.
type Outgoing struct {
	state  OutgoingState
	peer   wire.Id
	secret *keys.EphemeralSecret
	info   envelope.PingInfo
}

// NewOutgoing returns an exchange with no pending request.
func NewOutgoing() *Outgoing {
	return &Outgoing{}
}

// State reports the exchange's current state.
func (o *Outgoing) State() OutgoingState {
	return o.state
}

// Start generates a fresh ephemeral secret and returns the ping_request
// message to send peer. Fails if a request is already in flight.
func (o *Outgoing) Start(peer wire.Id, info envelope.PingInfo) (wire.ClientUpMessage, error) {
	if o.state != OutgoingNone {
		return wire.ClientUpMessage{}, fmt.Errorf("exchange: an outgoing exchange is already in progress")
	}

	secret, err := keys.GenerateEphemeralSecret()
	if err != nil {
		return wire.ClientUpMessage{}, fmt.Errorf("exchange: generate ephemeral secret: %w", err)
	}

	o.state = OutgoingAwaitingDecision
	o.peer = peer
	o.secret = secret
	o.info = info

	return wire.ClientUpMessage{To: peer, Msg: wire.PingRequest(secret.PublicKey())}, nil
}

// OutgoingAction reports what HandleDown produced: at most one of Send or
// Done is meaningful, and Unexpected marks an out-of-sequence message that
// was discarded without changing state.
type OutgoingAction struct {
	Send       *wire.ClientUpMessage
	Done       bool
	Unexpected bool
}

// HandleDown advances the exchange in response to a message forwarded from
// from. Messages from any id other than the pending peer are reported as
// Unexpected and otherwise ignored.
func (o *Outgoing) HandleDown(from wire.Id, msg wire.ClientClientMessage) (OutgoingAction, error) {
	if o.state == OutgoingNone || from != o.peer {
		return OutgoingAction{Unexpected: true}, nil
	}

	switch o.state {
	case OutgoingAwaitingDecision:
		switch msg.Msg {
		case wire.TagAcceptPing:
			shared, err := o.secret.DiffieHellman(*msg.Key)
			if err != nil {
				o.reset()
				return OutgoingAction{}, fmt.Errorf("exchange: key agreement with peer %d: %w", from, err)
			}

			enc, err := o.info.Encrypt(shared)
			if err != nil {
				o.reset()
				return OutgoingAction{}, fmt.Errorf("exchange: encrypt ping for peer %d: %w", from, err)
			}

			up := wire.ClientUpMessage{To: o.peer, Msg: wire.Ping(enc)}
			o.state = OutgoingAwaitingAck
			return OutgoingAction{Send: &up}, nil

		case wire.TagRejectPing:
			o.reset()
			return OutgoingAction{Done: true}, nil

		default:
			return OutgoingAction{Unexpected: true}, nil
		}

	case OutgoingAwaitingAck:
		if msg.Msg == wire.TagPingAck {
			o.reset()
			return OutgoingAction{Done: true}, nil
		}
		return OutgoingAction{Unexpected: true}, nil
	}

	return OutgoingAction{Unexpected: true}, nil
}

// HandleNoSuchID resets the exchange if it was awaiting the named peer's
// decision and the server just reported that peer unreachable. Reports
// whether it consumed the notice.
func (o *Outgoing) HandleNoSuchID(id wire.Id) bool {
	if o.state == OutgoingAwaitingDecision && o.peer == id {
		o.reset()
		return true
	}
	return false
}

func (o *Outgoing) reset() {
	o.state = OutgoingNone
	o.peer = 0
	o.secret = nil
}
