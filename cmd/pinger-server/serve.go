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
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/janm-relay/pinger/health"
	"github.com/janm-relay/pinger/internal/config"
	"github.com/janm-relay/pinger/internal/logger"
	"github.com/janm-relay/pinger/internal/metrics"
	"github.com/janm-relay/pinger/internal/relay"
	"github.com/janm-relay/pinger/internal/wire"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cmd.OutOrStdout(), logger.ParseLevel(cfg.LogLevel))
	logger.SetDefault(log)

	r := relay.New(relay.Config{
		IDMin:             wire.Id(cfg.IDMin),
		IDMax:             wire.Id(cfg.IDMax),
		IDAllocMaxRetries: cfg.IDAllocMaxRetries,
		MailboxCapacity:   cfg.MailboxCapacity,
	}, log)

	checker := health.NewHealthChecker(0)
	checker.SetLogger(log)
	checker.RegisterCheck("connections", health.ConnectionCountCheck(r.ConnectionCount, 10_000))

	mux := http.NewServeMux()
	mux.Handle("/api", r.Handler())
	mux.Handle("/healthz", checker.Handler())
	relayServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("relay listening", logger.Int("port", cfg.Port))
		if err := relayServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down relay")
		return relayServer.Shutdown(context.Background())
	})

	if cfg.MetricsAddr != "" {
		metricsServer := metrics.NewServer(cfg.MetricsAddr)
		group.Go(func() error {
			log.Info("metrics listening", logger.String("addr", cfg.MetricsAddr))
			return metricsServer.Run(ctx)
		})
	}

	return group.Wait()
}
