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

package exchange

import (
	"fmt"

	"github.com/janm-relay/pinger/crypto/keys"
	"github.com/janm-relay/pinger/internal/envelope"
	"github.com/janm-relay/pinger/internal/wire"
)

// IncomingState names where a received exchange stands.
type IncomingState int

const (
	IncomingAbsent IncomingState = iota
	IncomingDeciding
	IncomingAwaitingPing
)

// Incoming drives one client's side of responding to a peer's ping
// request: it holds the peer's offered key while the user decides, then
// the agreed shared key while it waits for the sealed position.
type Incoming struct {
	state   IncomingState
	peer    wire.Id
	peerKey keys.PublicKey
	secret  *keys.EphemeralSecret
	shared  keys.SharedKey
}

// NewIncoming returns an exchange with nothing pending.
func NewIncoming() *Incoming {
	return &Incoming{}
}

// State reports the exchange's current state.
func (in *Incoming) State() IncomingState {
	return in.state
}

// Peer returns the id of the peer currently being decided on or awaited,
// valid only while State is not IncomingAbsent.
func (in *Incoming) Peer() wire.Id {
	return in.peer
}

// HandlePingRequest records a peer's offer to exchange pings, moving the
// exchange to IncomingDeciding so the caller can prompt the user. Reports
// false (and leaves state untouched) if a decision is already pending.
func (in *Incoming) HandlePingRequest(from wire.Id, key keys.PublicKey) bool {
	if in.state != IncomingAbsent {
		return false
	}

	in.state = IncomingDeciding
	in.peer = from
	in.peerKey = key
	return true
}

// Accept completes the key agreement and returns the accept_ping message
// to send back to the peer.
func (in *Incoming) Accept() (wire.ClientUpMessage, error) {
	if in.state != IncomingDeciding {
		return wire.ClientUpMessage{}, fmt.Errorf("exchange: no pending ping_request to accept")
	}

	secret, err := keys.GenerateEphemeralSecret()
	if err != nil {
		return wire.ClientUpMessage{}, fmt.Errorf("exchange: generate ephemeral secret: %w", err)
	}

	shared, err := secret.DiffieHellman(in.peerKey)
	if err != nil {
		return wire.ClientUpMessage{}, fmt.Errorf("exchange: key agreement with peer %d: %w", in.peer, err)
	}

	in.secret = secret
	in.shared = shared
	in.state = IncomingAwaitingPing

	return wire.ClientUpMessage{To: in.peer, Msg: wire.AcceptPing(secret.PublicKey())}, nil
}

// Reject declines the pending ping_request and returns the reject_ping
// message to send back, dropping all exchange state.
func (in *Incoming) Reject() (wire.ClientUpMessage, error) {
	if in.state != IncomingDeciding {
		return wire.ClientUpMessage{}, fmt.Errorf("exchange: no pending ping_request to reject")
	}

	peer := in.peer
	in.reset()
	return wire.ClientUpMessage{To: peer, Msg: wire.RejectPing()}, nil
}

// IncomingAction reports what HandleDown produced: Info and Ack are set
// together on a successful decrypt; Unexpected marks a message that was
// discarded without changing state.
type IncomingAction struct {
	Info       *envelope.PingInfo
	Ack        *wire.ClientUpMessage
	Unexpected bool
}

// HandleDown advances the exchange in response to a message forwarded from
// from. Only a ping message is meaningful here, and only while awaiting
// one from the expected peer; anything else is Unexpected.
func (in *Incoming) HandleDown(from wire.Id, msg wire.ClientClientMessage) (IncomingAction, error) {
	if msg.Msg != wire.TagPing {
		return IncomingAction{Unexpected: true}, nil
	}
	if in.state != IncomingAwaitingPing || from != in.peer {
		return IncomingAction{Unexpected: true}, nil
	}

	peer := in.peer
	shared := in.shared
	in.reset()

	info, err := envelope.Decrypt(*msg.Info, shared)
	if err != nil {
		return IncomingAction{}, fmt.Errorf("exchange: decrypt ping from peer %d: %w", peer, err)
	}

	ack := wire.ClientUpMessage{To: peer, Msg: wire.PingAck()}
	return IncomingAction{Info: &info, Ack: &ack}, nil
}

func (in *Incoming) reset() {
	in.state = IncomingAbsent
	in.peer = 0
	in.secret = nil
	in.shared = keys.SharedKey{}
}
