// ABOUTME: Gateway orchestrator that coordinates gRPC and HTTP servers
// ABOUTME: Wires store, registry, dispatcher, outbox and replay guard; owns their lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/tsnet"

	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/config"
	"github.com/2389/whitelist-gateway/internal/contract"
	"github.com/2389/whitelist-gateway/internal/metrics"
	"github.com/2389/whitelist-gateway/internal/outbox"
	"github.com/2389/whitelist-gateway/internal/replay"
	"github.com/2389/whitelist-gateway/internal/rpc"
	"github.com/2389/whitelist-gateway/internal/store"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

// Gateway orchestrates the whitelist-gateway server components.
// It serves the Whitelist gRPC service and the HTTP API over one registry.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *whitelist.Registry
	dispatcher  *contract.Dispatcher
	identifier  *auth.Identifier
	replay      *replay.Guard
	sink        outbox.Sink
	events      *outbox.Broadcaster
	metrics     *metrics.Metrics
	promReg     *prometheus.Registry
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
	startedAt   time.Time

	shutdownOnce sync.Once
	shutdownErr  error
}

// OpenStore opens the state store selected by database.driver.
// The caller owns the returned store and must Close it.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		s, err := store.OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("initializing redis store: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		return store.NewSQLiteStore(":memory:")
	default:
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	}
}

// initSink creates the outbox sink selected by outbox.driver.
func initSink(ctx context.Context, cfg config.OutboxConfig, logger *slog.Logger) (outbox.Sink, error) {
	if cfg.Driver != config.OutboxRedis {
		return outbox.NewLogSink(logger), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing outbox redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting outbox redis: %w", err)
	}
	return outbox.NewRedisStreamSink(client, cfg.Stream, cfg.MaxLen), nil
}

// initIdentifier builds the sender identifier from auth config.
func initIdentifier(cfg config.AuthConfig) (*auth.Identifier, error) {
	var tokens auth.TokenVerifier
	if cfg.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.JWTSecret), auth.WithIssuer(cfg.Issuer))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		tokens = v
	}
	return auth.NewIdentifier(tokens, cfg.SenderHeader)
}

// createGRPCServer creates a gRPC server that authenticates every call
// except queries and health checks.
func createGRPCServer(id *auth.Identifier, logger *slog.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			auth.UnaryInterceptor(id, logger,
				rpc.Whitelist_Query_FullMethodName,
				healthpb.Health_Check_FullMethodName,
			),
		),
	)
}

// New creates a gateway from cfg. It opens the store and, when
// contract.admins is set and the store is empty, instantiates the registry.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	identifier, err := initIdentifier(cfg.Auth)
	if err != nil {
		return nil, err
	}

	s, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	durable, err := initSink(ctx, cfg.Outbox, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	events := outbox.NewBroadcaster(logger)
	sink := outbox.Tee(durable, events)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	registry := whitelist.NewRegistry(s,
		whitelist.WithMetrics(m),
		whitelist.WithLogger(logger),
	)
	guard := replay.New(replay.Options{
		TTL:        cfg.Replay.TTL,
		MaxEntries: cfg.Replay.MaxEntries,
	})

	dispatcher, err := contract.NewDispatcher(registry, s,
		contract.WithSink(sink),
		contract.WithReplayGuard(guard),
		contract.WithMetrics(m),
		contract.WithLogger(logger),
	)
	if err != nil {
		guard.Close()
		_ = sink.Close()
		_ = s.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	gw := &Gateway{
		config:     cfg,
		store:      s,
		registry:   registry,
		dispatcher: dispatcher,
		identifier: identifier,
		replay:     guard,
		sink:       sink,
		events:     events,
		metrics:    m,
		promReg:    promReg,
		health:     health.NewServer(),
		logger:     logger.With("component", "gateway"),
		startedAt:  time.Now(),
	}

	gw.grpcServer = createGRPCServer(identifier, logger)
	rpc.RegisterWhitelistServer(gw.grpcServer, newWhitelistService(gw, logger))
	healthpb.RegisterHealthServer(gw.grpcServer, gw.health)

	gw.httpServer = &http.Server{
		Handler:           gw.newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := gw.bootstrap(ctx); err != nil {
		_ = gw.closeComponents()
		return nil, err
	}
	if err := gw.refreshHealth(ctx); err != nil {
		_ = gw.closeComponents()
		return nil, err
	}

	return gw, nil
}

// bootstrap instantiates from contract.admins when the store is empty.
func (g *Gateway) bootstrap(ctx context.Context) error {
	admins := g.config.Contract.Admins
	if len(admins) == 0 {
		return nil
	}

	ok, err := g.registry.Instantiated(ctx)
	if err != nil {
		return fmt.Errorf("checking instantiation: %w", err)
	}
	if ok {
		g.logger.Debug("registry already instantiated, contract.admins ignored")
		return nil
	}

	_, err = g.dispatcher.Instantiate(ctx, "", &contract.InstantiateMsg{
		Admins:  admins,
		Mutable: g.config.Contract.IsMutable(),
	})
	// Another instance sharing the store may have won the race.
	if err != nil && !errors.Is(err, whitelist.ErrAlreadyInstantiated) {
		return fmt.Errorf("bootstrapping registry: %w", err)
	}
	return nil
}

// refreshHealth marks the Whitelist service SERVING once the registry exists.
func (g *Gateway) refreshHealth(ctx context.Context) error {
	ok, err := g.registry.Instantiated(ctx)
	if err != nil {
		return fmt.Errorf("checking instantiation: %w", err)
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
		list, err := g.registry.ListAdmins(ctx)
		if err != nil {
			return fmt.Errorf("listing admins: %w", err)
		}
		g.metrics.SetAdminState(len(list.Admins), list.Mutable)
	}
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.health.SetServingStatus(rpc.ServiceName, st)
	return nil
}

// shutdownTimeout bounds the drain after Run's context ends.
const shutdownTimeout = 5 * time.Second

// Run serves gRPC and HTTP until ctx is canceled or a server fails, then
// shuts the gateway down. A canceled ctx is a clean exit and returns nil.
func (g *Gateway) Run(ctx context.Context) error {
	lns, err := g.listen(ctx)
	if err != nil {
		_ = g.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.logger.Info("gRPC server listening", "addr", lns.grpc.Addr().String())
		if err := g.grpcServer.Serve(lns.grpc); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", lns.http.Addr().String())
		if err := g.httpServer.Serve(lns.http); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return g.Shutdown(sctx)
	})
	return eg.Wait()
}

// stopGRPC drains in-flight calls, or cuts them off if ctx expires first.
func (g *Gateway) stopGRPC(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.grpcServer.GracefulStop()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		g.grpcServer.Stop()
		<-done
	}
}

// Shutdown stops both servers, leaves the tailnet and releases the replay
// guard, outbox and store. Calls after the first return the first result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.health.Shutdown()

	// End event streams so HTTP shutdown is not held open by them.
	_ = g.events.Close()

	var errs []error
	note := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	note("HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.stopGRPC(ctx)
	if g.tsnetServer != nil {
		note("tailscale shutdown", g.tsnetServer.Close())
	}

	note("close", g.closeComponents())
	return errors.Join(errs...)
}

// closeComponents releases the replay guard, outbox and store.
func (g *Gateway) closeComponents() error {
	g.replay.Close()
	var errs []error
	if err := g.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("outbox close: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}
