package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Polqt/causalcrdt/polog"
	"github.com/Polqt/causalcrdt/primitives"
	"github.com/Polqt/causalcrdt/replica"
)

func newRunCmd() *cobra.Command {
	var numReplicas int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scripted convergence demo across in-process replicas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(numReplicas, metricsAddr)
		},
	}
	cmd.Flags().IntVar(&numReplicas, "replicas", 3, "number of in-process replicas")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the first replica's /metrics endpoint listens on")
	return cmd
}

func runDemo(numReplicas int, metricsAddr string) error {
	logger, err := buildLogger()
	if err != nil {
		return fmt.Errorf("replicademo: build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	members := make([]string, numReplicas)
	for i := range members {
		members[i] = fmt.Sprintf("replica-%s", uuid.NewString()[:8])
	}

	replicas := make([]*replica.Replica, numReplicas)
	for i, name := range members {
		replicas[i] = replica.New(name, members, primitives.NewCounter(), polog.DefaultCompactionConfig(), logger.Named(name))
	}

	srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(replicas[0].Metrics().Registry, promhttp.HandlerOpts{})}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("metrics listening", zap.String("addr", metricsAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	for i, r := range replicas {
		e, err := r.Send(primitives.IncIntent{Delta: int64(i + 1)})
		if err != nil {
			return fmt.Errorf("replicademo: send from %s: %w", r.Self(), err)
		}
		for j, peer := range replicas {
			if j == i {
				continue
			}
			if _, err := peer.Receive(e); err != nil {
				return fmt.Errorf("replicademo: deliver %s -> %s: %w", r.Self(), peer.Self(), err)
			}
		}
	}

	for _, r := range replicas {
		v, err := r.Query(primitives.ReadQuery{})
		if err != nil {
			return fmt.Errorf("replicademo: query %s: %w", r.Self(), err)
		}
		logger.Info("converged", zap.String("replica", r.Self()), zap.Any("value", v), zap.Any("stable_vector", r.StableVector()))
	}

	logger.Info("demo complete, serving /metrics until interrupted")
	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
