package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tailored-agentic-units/statecontext/contextstore"
	"github.com/tailored-agentic-units/statecontext/metrics"
	"github.com/tailored-agentic-units/statecontext/protocol"
	"github.com/tailored-agentic-units/statecontext/stream"
)

const (
	defaultListen       = ":4004"
	defaultServeWait    = 2 * time.Second
	shutdownGracePeriod = 5 * time.Second
)

type serveFlags struct {
	listen     string
	namespaces []string
	contexts   []string
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	sf := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory context manager",
		Long: `Serve an in-memory context manager over connect, with Prometheus metrics
on /metrics. Contexts named with --context are opened at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := flags.timeout
			if timeout <= 0 {
				timeout = defaultServeWait
			}
			return serve(cmd.Context(), sf, timeout)
		},
	}

	cmd.Flags().StringVar(&sf.listen, "listen", defaultListen, "Address to listen on")
	cmd.Flags().StringSliceVar(&sf.namespaces, "namespace", nil, "Address prefix the store accepts (repeatable; none accepts all)")
	cmd.Flags().StringSliceVar(&sf.contexts, "context", nil, "Context ID to open at startup (repeatable)")
	return cmd
}

func serve(ctx context.Context, sf *serveFlags, timeout time.Duration) error {
	logger := slog.Default()

	store := contextstore.New(contextstore.Config{
		Namespaces: sf.namespaces,
		Contexts:   sf.contexts,
		Logger:     logger,
	})

	d := stream.NewDispatcher(ctx, stream.Config{Name: "contextstore", Logger: logger}, store.Handler())
	defer func() {
		if err := d.Shutdown(shutdownGracePeriod); err != nil {
			logger.Warn("dispatcher shutdown", slog.String("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg, "contextstore", d.Metrics); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	srv := &http.Server{
		Addr:    sf.listen,
		Handler: newServeMux(d, timeout, reg),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving context manager",
			slog.String("listen", sf.listen),
			slog.Any("contexts", store.Contexts()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServeMux routes connect calls through d, so the dispatcher's counters
// describe the server's load.
func newServeMux(d *stream.Dispatcher, timeout time.Duration, gatherer prometheus.Gatherer) *http.ServeMux {
	relay := func(ctx context.Context, kind protocol.MessageType, payload []byte) ([]byte, error) {
		return d.Send(ctx, kind, payload).Await(ctx, timeout)
	}

	path, handler := stream.NewConnectHandler(relay)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
