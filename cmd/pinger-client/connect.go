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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/janm-relay/pinger/internal/envelope"
	"github.com/janm-relay/pinger/internal/exchange"
	"github.com/janm-relay/pinger/internal/wire"
)

type client struct {
	conn *websocket.Conn
	out  *exchange.Outgoing
	in   *exchange.Incoming
	id   wire.Id
	send chan wire.ClientUpMessage
}

func runConnect(cmd *cobra.Command, args []string) error {
	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverURL, err)
	}
	defer conn.Close()

	c := &client{
		conn: conn,
		out:  exchange.NewOutgoing(),
		in:   exchange.NewIncoming(),
		send: make(chan wire.ClientUpMessage, 1),
	}

	downstream := make(chan wire.ClientDownMessage)
	go c.readLoop(downstream)

	go c.writeLoop()

	fmt.Println("connecting to", serverURL)
	fmt.Println("type <id> to ping, a<id> to accept, r<id> to reject")

	lines := make(chan string)
	go scanLines(lines)

	for {
		select {
		case down, ok := <-downstream:
			if !ok {
				fmt.Println("disconnected")
				return nil
			}
			c.handleDownstream(down)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.handleCommand(line)
		}
	}
}

func scanLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

func (c *client) readLoop(downstream chan<- wire.ClientDownMessage) {
	defer close(downstream)
	for {
		var down wire.ClientDownMessage
		if err := c.conn.ReadJSON(&down); err != nil {
			return
		}
		downstream <- down
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			fmt.Fprintln(os.Stderr, "write failed:", err)
			return
		}
	}
}

func (c *client) handleDownstream(down wire.ClientDownMessage) {
	if down.From == nil {
		c.handleServerMessage(down.Server)
		return
	}
	c.handleClientMessage(*down.From, down.Client)
}

func (c *client) handleServerMessage(msg wire.ServerMessage) {
	switch msg.Msg {
	case wire.TagConnected:
		c.id = *msg.ID
		fmt.Println("connected, your id is", c.id)
	case wire.TagNoSuchID:
		if c.out.HandleNoSuchID(*msg.ID) {
			fmt.Println("no client with id", *msg.ID)
		}
	case wire.TagError:
		fmt.Println("relay reported an error:", *msg.Details)
	}
}

func (c *client) handleClientMessage(from wire.Id, msg wire.ClientClientMessage) {
	switch msg.Msg {
	case wire.TagPingRequest:
		if c.in.HandlePingRequest(from, *msg.Key) {
			fmt.Printf("ping request from %d - accept with a%d, reject with r%d\n", from, from, from)
		} else {
			fmt.Println("ignoring unexpected ping_request from", from)
		}

	case wire.TagPing:
		action, err := c.in.HandleDown(from, msg)
		if err != nil {
			fmt.Println("could not decrypt ping from", from, ":", err)
			return
		}
		if action.Unexpected {
			fmt.Println("ignoring unexpected ping from", from)
			return
		}
		fmt.Printf("ping from %d: lat=%.6f lon=%.6f alt=%.1fm err=%.1fm ts=%d\n",
			from, action.Info.Latitude, action.Info.Longitude, action.Info.Altitude, action.Info.ErrorMeters, action.Info.Timestamp)
		c.send <- *action.Ack

	case wire.TagAcceptPing, wire.TagRejectPing, wire.TagPingAck:
		action, err := c.out.HandleDown(from, msg)
		if err != nil {
			fmt.Println("exchange with", from, "failed:", err)
			return
		}
		if action.Unexpected {
			fmt.Println("ignoring unexpected message from", from)
			return
		}
		if action.Send != nil {
			c.send <- *action.Send
		}
		if action.Done {
			fmt.Println("exchange with", from, "finished")
		}
	}
}

func (c *client) handleCommand(line string) {
	if line == "" {
		return
	}

	switch {
	case strings.HasPrefix(line, "a"):
		c.respondToPending(line[1:], true)
	case strings.HasPrefix(line, "r"):
		c.respondToPending(line[1:], false)
	default:
		c.startExchange(line)
	}
}

func (c *client) startExchange(raw string) {
	id, err := parseID(raw)
	if err != nil {
		fmt.Println(err)
		return
	}

	info := envelope.PingInfo{
		Timestamp:   uint64(time.Now().Unix()),
		Latitude:    latitude,
		Longitude:   longitude,
		Altitude:    float32(altitude),
		ErrorMeters: float32(errMeters),
	}

	msg, err := c.out.Start(id, info)
	if err != nil {
		fmt.Println(err)
		return
	}
	c.send <- msg
}

func (c *client) respondToPending(raw string, accept bool) {
	id, err := parseID(raw)
	if err != nil {
		fmt.Println(err)
		return
	}
	if c.in.State() == exchange.IncomingAbsent || c.in.Peer() != id {
		fmt.Println("no pending request from", id)
		return
	}

	var msg wire.ClientUpMessage
	if accept {
		msg, err = c.in.Accept()
	} else {
		msg, err = c.in.Reject()
	}
	if err != nil {
		fmt.Println(err)
		return
	}
	c.send <- msg
}

func parseID(raw string) (wire.Id, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	id := wire.Id(n)
	if !id.Valid() {
		return 0, fmt.Errorf("id %d is out of range [%d, %d]", n, wire.MinID, wire.MaxID)
	}
	return id, nil
}
