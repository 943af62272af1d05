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

// Package relay implements the server side of the rendezvous: the
// registry mapping short ids to live connections, and the per-connection
// pump that decodes, dispatches, and relays messages between them.
package relay

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/janm-relay/pinger/internal/metrics"
	"github.com/janm-relay/pinger/internal/wire"
)

// ErrServiceUnavailable is returned by Registry.Add when no id could be
// drawn after the configured number of collision retries.
var ErrServiceUnavailable = errors.New("relay: no id available")

// ErrNoSuchID is returned by Registry.Send when the destination id is not
// currently registered.
var ErrNoSuchID = errors.New("relay: no such id")

// Registry maps assigned ids to the mailbox of their owning connection. It
// is shared by every connection's pump and is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[wire.Id]*Mailbox

	idMin, idMax wire.Id
	maxRetries   int
	mailboxCap   int
}

// NewRegistry builds an empty registry. idMin and idMax bound the closed
// range ids are drawn from; maxRetries bounds consecutive collisions
// before Add gives up; mailboxCap sizes every connection's mailbox.
func NewRegistry(idMin, idMax wire.Id, maxRetries, mailboxCap int) *Registry {
	return &Registry{
		conns:      make(map[wire.Id]*Mailbox),
		idMin:      idMin,
		idMax:      idMax,
		maxRetries: maxRetries,
		mailboxCap: mailboxCap,
	}
}

// Add draws a fresh id, registers a mailbox for it, and returns both. The
// collision check and the insertion happen under the same exclusive
// acquisition, so two concurrent callers can never be handed the same id.
func (r *Registry) Add() (wire.Id, *Mailbox, error) {
	span := int(r.idMax-r.idMin) + 1

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.maxRetries; i++ {
		id := r.idMin + wire.Id(rand.N(span))
		if _, exists := r.conns[id]; exists {
			metrics.IDAllocRetriesTotal.Inc()
			continue
		}

		mailbox := newMailbox(r.mailboxCap)
		r.conns[id] = mailbox
		return id, mailbox, nil
	}

	metrics.IDAllocExhaustedTotal.Inc()
	return 0, nil, ErrServiceUnavailable
}

// Send looks up to's mailbox under a shared acquisition, releases the lock,
// and enqueues {from, msg} into it. A closed mailbox (the peer disconnected
// between lookup and enqueue) surfaces as ErrMailboxClosed, not ErrNoSuchID
// — callers should log it rather than report it to the sender.
func (r *Registry) Send(to, from wire.Id, msg wire.ClientClientMessage) error {
	r.mu.RLock()
	mailbox, ok := r.conns[to]
	r.mu.RUnlock()

	if !ok {
		return ErrNoSuchID
	}

	return mailbox.enqueue(wire.DownFromClient(from, msg))
}

// Remove drops id's mapping and closes its mailbox. Idempotent: removing an
// id that is absent (or already removed) is a no-op.
func (r *Registry) Remove(id wire.Id) {
	r.mu.Lock()
	mailbox, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if ok {
		mailbox.close()
	}
}

// Count returns the number of currently registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
