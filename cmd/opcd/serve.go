package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/opc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveConfig struct {
	listen          string
	httpAddr        string
	logLevel        string
	strict          bool
	relay           bool
	heartbeat       time.Duration
	shutdownTimeout time.Duration
	maxMessageSize  int
}

func serveCmd() *cobra.Command {
	var cfg serveConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept OPC frames over TCP and WebSocket",
		Long: `Run an OPC server.

Frames are accepted on the TCP listener and, when --http is set, on the /ws
WebSocket endpoint. With --relay every frame is forwarded to all other TCP
clients. Prometheus metrics are exposed on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.listen, "listen", "l", ":7890", "TCP address to accept OPC clients on")
	flags.StringVar(&cfg.httpAddr, "http", "", "HTTP address for /ws, /metrics and /healthz (disabled if empty)")
	flags.StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.strict, "strict", false, "Reject oversize payloads instead of truncating them")
	flags.BoolVar(&cfg.relay, "relay", false, "Forward every received frame to the other TCP clients")
	flags.DurationVar(&cfg.heartbeat, "heartbeat", 30*time.Second, "Heartbeat interval; idle clients are dropped after twice this")
	flags.IntVar(&cfg.maxMessageSize, "max-message-size", 1<<20, "Largest WebSocket message accepted, in bytes")
	flags.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 0, "Time to keep accepting after a shutdown signal")

	return cmd
}

func runServe(ctx context.Context, cfg serveConfig) error {
	logger, err := newLogger(cfg.logLevel)
	if err != nil {
		return err
	}

	policy := opc.Truncate
	if cfg.strict {
		policy = opc.Strict
	}

	registry := prometheus.NewRegistry()
	connOpts := []opc.Option{
		opc.CustomCodecOption(opc.NewCodec(policy)),
		opc.LoggerOption(logger),
		opc.MetricsOption(opc.NewMetrics(registry, "opcd", "")),
		opc.HeartbeatOption(cfg.heartbeat),
	}

	var handler *opc.MessageHandler
	handler, err = opc.NewMessageHandler(func(id int64, msg opc.Message) error {
		if !cfg.relay {
			return nil
		}
		return handler.Broadcast(msg, id)
	}, connOpts...)
	if err != nil {
		return err
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.listen)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", cfg.listen)
	}

	server, err := opc.New(addr,
		opc.ServerLoggerOption(logger),
		opc.ServerShutdownTimeoutOption(cfg.shutdownTimeout),
	)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := server.Serve(ctx, handler)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.httpAddr != "" {
		ws, err := opc.NewWebSocketHandler(append(connOpts,
			opc.MessageMaxSizeOption(cfg.maxMessageSize),
			opc.OnMessageOption(func(msg opc.Message) error {
				if !cfg.relay {
					return nil
				}
				return handler.Broadcast(msg)
			}),
		)...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.httpAddr,
			Handler:           newRouter(ws, registry, handler),
			ReadHeaderTimeout: 5 * time.Second,
		}

		group.Go(func() error {
			logger.Info("http server started", "addr", cfg.httpAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "http server")
			}
			return nil
		})

		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = group.Wait()
	handler.CloseAll()
	return err
}

// newRouter mounts the WebSocket endpoint, metrics and a health check.
func newRouter(ws http.Handler, gatherer prometheus.Gatherer, handler *opc.MessageHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/ws", ws)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"tcp": handler.Len()})
	})

	return r
}
