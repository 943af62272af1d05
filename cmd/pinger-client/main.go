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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	latitude  float64
	longitude float64
	altitude  float64
	errMeters float64
)

var rootCmd = &cobra.Command{
	Use:   "pinger-client",
	Short: "Interactive reference client for the pinger relay",
	Long: `pinger-client connects to a pinger relay and lets you exchange a ping
with another connected client by typing its short numeric id.

Once connected, type:
  <id>   to request a ping exchange with that id
  a<id>  to accept a pending request from that id
  r<id>  to reject a pending request from that id`,
	RunE: runConnect,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "ws://localhost:8000/api", "relay websocket URL")
	rootCmd.Flags().Float64Var(&latitude, "lat", 0, "latitude to report, in degrees")
	rootCmd.Flags().Float64Var(&longitude, "lon", 0, "longitude to report, in degrees")
	rootCmd.Flags().Float64Var(&altitude, "alt", 0, "altitude to report, in meters")
	rootCmd.Flags().Float64Var(&errMeters, "err", 0, "estimated position error to report, in meters")
}
