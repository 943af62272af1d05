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
	"errors"
	"sync"

	"github.com/janm-relay/pinger/internal/wire"
)

// ErrMailboxClosed is returned by Mailbox.enqueue once its owning
// connection has disconnected and called Registry.Remove.
var ErrMailboxClosed = errors.New("relay: mailbox closed")

// Mailbox is a connection's inbound queue of downstream messages: one slot
// pre-loaded with the connected notice, plus room for one in-flight
// message, per the capacity floor the relay enforces by default.
type Mailbox struct {
	ch        chan wire.ClientDownMessage
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newMailbox(capacity int) *Mailbox {
	return &Mailbox{
		ch:      make(chan wire.ClientDownMessage, capacity),
		closeCh: make(chan struct{}),
	}
}

// enqueue delivers msg, blocking while the mailbox is full, until either
// the send succeeds or the mailbox is closed out from under it.
func (m *Mailbox) enqueue(msg wire.ClientDownMessage) error {
	select {
	case <-m.closeCh:
		return ErrMailboxClosed
	default:
	}

	select {
	case m.ch <- msg:
		return nil
	case <-m.closeCh:
		return ErrMailboxClosed
	}
}

// receive returns the channel a connection's write loop drains.
func (m *Mailbox) receive() <-chan wire.ClientDownMessage {
	return m.ch
}

// close marks the mailbox closed, causing any blocked or future enqueue to
// fail immediately. Idempotent.
func (m *Mailbox) close() {
	m.closeOnce.Do(func() { close(m.closeCh) })
}
