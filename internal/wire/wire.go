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

// Package wire implements the relay's JSON message taxonomy: the tagged
// union of messages clients exchange through the server, and the untagged
// union of what a client observes on its downstream channel. Go has no
// native sum types, so each union is modeled as a discriminated struct
// carrying a "msg" tag plus the optional fields that tag permits, with
// Validate enforcing that the fields present match one of the enumerated
// variants.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/janm-relay/pinger/crypto/keys"
	"github.com/janm-relay/pinger/internal/envelope"
)

// Id is a connection's short, ephemeral relay address.
type Id uint16

// MinID and MaxID bound the closed range a valid Id may occupy.
const (
	MinID Id = 10
	MaxID Id = 999
)

// Valid reports whether id falls in [MinID, MaxID].
func (id Id) Valid() bool {
	return id >= MinID && id <= MaxID
}

func (id Id) String() string {
	return strconv.Itoa(int(id))
}

// Tag discriminates the variant of a ClientClientMessage or ServerMessage.
type Tag string

const (
	TagPingRequest Tag = "ping_request"
	TagAcceptPing  Tag = "accept_ping"
	TagRejectPing  Tag = "reject_ping"
	TagPing        Tag = "ping"
	TagPingAck     Tag = "ping_ack"
	TagConnected   Tag = "connected"
	TagNoSuchID    Tag = "no_such_id"
	TagError       Tag = "error"
)

// ErrMalformed is returned verbatim as a down-stream error's details when a
// frame cannot be decoded into any known message shape.
var ErrMalformed = errors.New("could not deserialize message")

// ErrUnknownTag marks a msg tag that does not belong to the taxonomy.
var ErrUnknownTag = errors.New("wire: unknown message tag")

// ClientClientMessage is a message one client addresses to another, relayed
// unread by the server. Exactly one of Key or Info is populated, depending
// on Msg; RejectPing and PingAck carry neither.
type ClientClientMessage struct {
	Msg  Tag
	Key  *keys.PublicKey
	Info *envelope.EncryptedPingInfo
}

// PingRequest builds a ping_request message carrying the sender's ephemeral
// public key.
func PingRequest(key keys.PublicKey) ClientClientMessage {
	return ClientClientMessage{Msg: TagPingRequest, Key: &key}
}

// AcceptPing builds an accept_ping message carrying the acceptor's
// ephemeral public key.
func AcceptPing(key keys.PublicKey) ClientClientMessage {
	return ClientClientMessage{Msg: TagAcceptPing, Key: &key}
}

// RejectPing builds a reject_ping message.
func RejectPing() ClientClientMessage {
	return ClientClientMessage{Msg: TagRejectPing}
}

// Ping builds a ping message carrying a sealed position envelope.
func Ping(info envelope.EncryptedPingInfo) ClientClientMessage {
	return ClientClientMessage{Msg: TagPing, Info: &info}
}

// PingAck builds a ping_ack message.
func PingAck() ClientClientMessage {
	return ClientClientMessage{Msg: TagPingAck}
}

// Validate checks that the fields present on m match the variant named by
// Msg, returning ErrUnknownTag wrapped with context for any other tag.
func (m ClientClientMessage) Validate() error {
	switch m.Msg {
	case TagPingRequest, TagAcceptPing:
		if m.Key == nil {
			return fmt.Errorf("wire: %q message requires a key", m.Msg)
		}
		if m.Info != nil {
			return fmt.Errorf("wire: %q message must not carry info", m.Msg)
		}
	case TagPing:
		if m.Info == nil {
			return fmt.Errorf("wire: ping message requires info")
		}
		if m.Key != nil {
			return fmt.Errorf("wire: ping message must not carry a key")
		}
	case TagRejectPing, TagPingAck:
		if m.Key != nil || m.Info != nil {
			return fmt.Errorf("wire: %q message must not carry fields", m.Msg)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTag, m.Msg)
	}
	return nil
}

// appendFields writes "msg":<tag> and any variant-specific field onto buf,
// in wire order, without the surrounding braces or a leading/trailing comma.
func (m ClientClientMessage) appendFields(buf *bytes.Buffer) error {
	if err := m.Validate(); err != nil {
		return err
	}

	tagJSON, err := json.Marshal(string(m.Msg))
	if err != nil {
		return err
	}
	buf.WriteString(`"msg":`)
	buf.Write(tagJSON)

	switch m.Msg {
	case TagPingRequest, TagAcceptPing:
		keyJSON, err := json.Marshal(*m.Key)
		if err != nil {
			return err
		}
		buf.WriteString(`,"key":`)
		buf.Write(keyJSON)
	case TagPing:
		infoJSON, err := json.Marshal(*m.Info)
		if err != nil {
			return err
		}
		buf.WriteString(`,"info":`)
		buf.Write(infoJSON)
	}
	return nil
}

// ServerMessage is a message the server itself originates: an assignment
// notice, a routing failure, or a decode error report.
type ServerMessage struct {
	Msg     Tag
	ID      *Id
	Details *string
}

// Connected builds a connected message reporting the caller's assigned Id.
func Connected(id Id) ServerMessage {
	return ServerMessage{Msg: TagConnected, ID: &id}
}

// NoSuchID builds a no_such_id message naming the unreachable destination.
func NoSuchID(id Id) ServerMessage {
	return ServerMessage{Msg: TagNoSuchID, ID: &id}
}

// ServerError builds an error message carrying a human-readable reason.
func ServerError(details string) ServerMessage {
	return ServerMessage{Msg: TagError, Details: &details}
}

func (m ServerMessage) appendFields(buf *bytes.Buffer) error {
	tagJSON, err := json.Marshal(string(m.Msg))
	if err != nil {
		return err
	}
	buf.WriteString(`"msg":`)
	buf.Write(tagJSON)

	switch m.Msg {
	case TagConnected, TagNoSuchID:
		if m.ID == nil {
			return fmt.Errorf("wire: %q message requires an id", m.Msg)
		}
		fmt.Fprintf(buf, `,"id":%d`, *m.ID)
	case TagError:
		if m.Details == nil {
			return fmt.Errorf("wire: error message requires details")
		}
		detailsJSON, err := json.Marshal(*m.Details)
		if err != nil {
			return err
		}
		buf.WriteString(`,"details":`)
		buf.Write(detailsJSON)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTag, m.Msg)
	}
	return nil
}

// ClientUpMessage is what a client sends upstream: a destination plus the
// payload to relay to it unread.
type ClientUpMessage struct {
	To  Id
	Msg ClientClientMessage
}

func (m ClientUpMessage) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	fmt.Fprintf(&buf, `"to":%d,`, m.To)
	if err := m.Msg.appendFields(&buf); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *ClientUpMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		To   Id                          `json:"to"`
		Msg  Tag                         `json:"msg"`
		Key  *keys.PublicKey             `json:"key,omitempty"`
		Info *envelope.EncryptedPingInfo `json:"info,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrMalformed
	}

	msg := ClientClientMessage{Msg: raw.Msg, Key: raw.Key, Info: raw.Info}
	if err := msg.Validate(); err != nil {
		return ErrMalformed
	}

	m.To = raw.To
	m.Msg = msg
	return nil
}

// ClientDownMessage is what a client observes on its downstream channel: an
// untagged union disambiguated by the presence of "from". A message with
// "from" was forwarded by another client and carries a ClientClientMessage;
// one without it was originated by the server and carries a ServerMessage.
type ClientDownMessage struct {
	From   *Id
	Client ClientClientMessage
	Server ServerMessage
}

// DownFromClient builds a downstream message forwarded from another client.
func DownFromClient(from Id, msg ClientClientMessage) ClientDownMessage {
	return ClientDownMessage{From: &from, Client: msg}
}

// DownFromServer builds a downstream message the server originated itself.
func DownFromServer(msg ServerMessage) ClientDownMessage {
	return ClientDownMessage{Server: msg}
}

func (m ClientDownMessage) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m.From != nil {
		fmt.Fprintf(&buf, `"from":%d,`, *m.From)
		if err := m.Client.appendFields(&buf); err != nil {
			return nil, err
		}
	} else {
		if err := m.Server.appendFields(&buf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *ClientDownMessage) UnmarshalJSON(data []byte) error {
	var probe struct {
		From *Id `json:"from"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ErrMalformed
	}

	if probe.From != nil {
		var raw struct {
			From Id                          `json:"from"`
			Msg  Tag                         `json:"msg"`
			Key  *keys.PublicKey             `json:"key,omitempty"`
			Info *envelope.EncryptedPingInfo `json:"info,omitempty"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrMalformed
		}

		msg := ClientClientMessage{Msg: raw.Msg, Key: raw.Key, Info: raw.Info}
		if err := msg.Validate(); err != nil {
			return ErrMalformed
		}

		from := raw.From
		*m = ClientDownMessage{From: &from, Client: msg}
		return nil
	}

	var raw struct {
		Msg     Tag     `json:"msg"`
		ID      *Id     `json:"id,omitempty"`
		Details *string `json:"details,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrMalformed
	}

	srv := ServerMessage{Msg: raw.Msg}
	switch raw.Msg {
	case TagConnected, TagNoSuchID:
		if raw.ID == nil {
			return ErrMalformed
		}
		srv.ID = raw.ID
	case TagError:
		if raw.Details == nil {
			return ErrMalformed
		}
		srv.Details = raw.Details
	default:
		return ErrMalformed
	}

	*m = ClientDownMessage{Server: srv}
	return nil
}
