package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"roomchat/internal/chat"
	"roomchat/internal/config"
	"roomchat/internal/db"
	grpcserver "roomchat/internal/grpc"
	"roomchat/internal/handlers"
	"roomchat/internal/media"
	"roomchat/internal/middleware"
	"roomchat/internal/notify"
	"roomchat/internal/observability"
	"roomchat/internal/rabbitmq"
	"roomchat/internal/relay"
	"roomchat/internal/repositories"
	"roomchat/internal/telemetry"
	"roomchat/internal/tracing"
	"roomchat/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var (
		messages repositories.MessageRepository
		users    repositories.UserRepository
	)
	switch cfg.Store {
	case config.StorePostgres:
		database, err := db.Connect(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		defer database.Close()
		messages = repositories.NewMessageRepo(database)
		users = repositories.NewUserRepo(database)
	default:
		messages = repositories.NewMemoryMessageRepo()
		users = repositories.NewMemoryUserRepo()
	}
	slog.Info("message store selected", "store", cfg.Store)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	slog.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, telemetry.RoutingKey, cfg.ServiceName, cfg.Environment)

	var (
		roomRelay  ws.Relay
		redisRelay *relay.Redis
		relayPing  handlers.Pinger
	)
	if cfg.RedisAddr != "" {
		redisRelay, err = relay.NewRedis(ctx, cfg.RedisAddr, relay.DefaultChannel)
		if err != nil {
			return err
		}
		defer redisRelay.Close()
		roomRelay = redisRelay
		relayPing = redisRelay
	}

	hub := ws.NewHub(roomRelay)
	defer hub.Close()
	presence := ws.NewPresence()
	lifecycle := ws.NewLifecycle(hub, presence, users, ws.LifecycleOptions{
		ReconnectGrace:    cfg.ReconnectGrace,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	defer lifecycle.Shutdown()

	svc := chat.NewService(messages, users, hub, notify.NewDispatcher(publisher, users), chat.Options{
		OrphanReplyPolicy: cfg.OrphanReplyPolicy,
	})
	defer svc.Wait()

	uploads, err := media.NewStore(cfg.UploadDir, "/uploads")
	if err != nil {
		return err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		middleware.AccessLog(),
	)

	handlers.NewStatusHandler(cfg.Environment, rabbitmq.PublisherMode(publisher), messages, relayPing).Register(router)
	handlers.NewMessageHandler(svc, uploads, audit, cfg.IsProduction()).Register(router)
	router.GET("/api/presence", handlers.NewPresenceHandler(presence).ListOnline)
	router.GET("/ws", ws.NewHandler(lifecycle).Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/uploads", uploads.Dir())
	handlers.RegisterDebugRoutes(router, audit, lifecycle, cfg.DebugRoutes)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return lifecycle.RunHeartbeatSweeper(gctx) })

	if redisRelay != nil {
		g.Go(func() error { return redisRelay.Run(gctx, hub.DeliverRoom) })
	}

	if cfg.GRPCHealthAddr != "" {
		checks := map[string]grpcserver.Pinger{"store": messages}
		if redisRelay != nil {
			checks["relay"] = redisRelay
		}
		healthServer := grpcserver.NewHealthServer(cfg.ServiceName, checks)
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
		g.Go(func() error { return healthServer.Serve(lis) })
		g.Go(func() error { return healthServer.Watch(gctx, 15*time.Second) })
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Stop()
			return nil
		})
	}

	err = g.Wait()
	slog.Info("shutting down", "parked_sessions", lifecycle.Parked(), "online", presence.Count())
	return err
}
