package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "bookvault/docs/swagger"
	"bookvault/internal/orders/adapters"
	"bookvault/internal/orders/adapters/memory"
	"bookvault/internal/orders/application"
	"bookvault/internal/orders/domain"
	"bookvault/internal/orders/infrastructure"
	"bookvault/internal/orders/ports"
	"bookvault/pkg/cache"
	"bookvault/pkg/config"
	"bookvault/pkg/db"
	"bookvault/pkg/events"
	grpcpkg "bookvault/pkg/grpc"
	"bookvault/pkg/kafka"
	"bookvault/pkg/logger"
	"bookvault/pkg/middleware"
	"bookvault/pkg/rabbitmq"
	"bookvault/pkg/tls"
)

const (
	paymentConsumerRetries = 3
	shutdownTimeout        = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		httpPort string
		grpcPort string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs and the payment event consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := loadConfig()
			defer log.Sync()

			if httpPort != "" {
				cfg.HTTPPort = httpPort
			}
			if grpcPort != "" {
				cfg.GRPCPort = grpcPort
			}
			return serve(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().StringVar(&httpPort, "http-port", "", "HTTP listen port (overrides ORDERS_HTTP_PORT)")
	cmd.Flags().StringVar(&grpcPort, "grpc-port", "", "gRPC listen port (overrides ORDERS_GRPC_PORT)")
	return cmd
}

// app holds the wired service and the resources to release on shutdown
type app struct {
	useCase *application.OrderUseCase
	rabbit  *rabbitmq.Connection
	health  func(ctx context.Context) error
	closers []io.Closer
}

func (a *app) close(log *logger.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn("failed to close resource", zap.Error(err))
		}
	}
}

func serve(parent context.Context, cfg *config.Config, log *logger.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting orders service",
		zap.String("storage", cfg.StorageDriver),
		zap.String("broker", cfg.EventsBroker),
	)

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	if a.rabbit != nil {
		consumer, err := adapters.NewPaymentEventsConsumer(a.rabbit, a.useCase, paymentConsumerRetries, log)
		if err != nil {
			log.Warn("failed to create payment consumer: " + err.Error())
		} else if err := consumer.Start(ctx); err != nil {
			log.Warn("failed to start payment consumer: " + err.Error())
		}
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      newRouter(cfg, log, a),
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	}

	grpcServer, err := newGRPCServer(cfg, log, a.useCase)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen for gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server listening on :" + cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	go func() {
		log.Info("gRPC server listening on :" + cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	log.Info("shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	grpcServer.GracefulStop()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("HTTP shutdown error: " + shutdownErr.Error())
	}

	log.Info("servers stopped")
	return err
}

func build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{health: func(context.Context) error { return nil }}

	policy, err := adapters.LoadPricingPolicy(cfg.PricingPolicyFile)
	if err != nil {
		return nil, err
	}

	var (
		uow  ports.UnitOfWork
		repo ports.OrderRepository
	)
	switch cfg.StorageDriver {
	case config.StorageMemory:
		var opts []memory.Option
		if cfg.CatalogStore == config.CatalogNoop {
			opts = append(opts, memory.WithCatalog(adapters.NewNoopCatalogStore()))
		}
		store := memory.NewStore(opts...)
		uow, repo = store, store
		log.Warn("using in-memory storage, orders are lost on restart")
	case config.StoragePostgres:
		dbConn, err := connectDB(cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := dbConn.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		a.closers = append(a.closers, sqlDB)
		a.health = sqlDB.PingContext

		if err := adapters.Migrate(dbConn); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		log.Info("connected to database")

		var uowOpts []adapters.UnitOfWorkOption
		if cfg.CatalogStore == config.CatalogNoop {
			uowOpts = append(uowOpts, adapters.WithoutStockTracking())
		}
		uow = adapters.NewGormUnitOfWork(dbConn, db.TxOptions{
			Isolation:  db.ParseIsolation(cfg.DBIsolation),
			MaxRetries: cfg.DBTxMaxRetries,
		}, uowOpts...)
		repo = adapters.NewPostgresOrderRepository(dbConn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	publisher, err := a.publisher(cfg, log)
	if err != nil {
		return nil, err
	}

	var opts []application.Option
	if cfg.RedisAddr != "" {
		c := cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
		a.closers = append(a.closers, c)
		if err := cache.Ping(ctx, c); err != nil {
			log.Warn("redis unreachable, idempotency keys will be ignored until it recovers: " + err.Error())
		}
		opts = append(opts, application.WithIdempotency(adapters.NewRedisIdempotencyStore(c, cfg.IdempotencyTTL)))
	}

	machine := domain.NewStateMachine(nil, domain.WithDeliveryEstimate(cfg.DeliveryEstimate()))
	a.useCase = application.NewOrderUseCase(uow, repo, domain.NewCalculator(policy), machine, publisher, log, opts...)
	return a, nil
}

// publisher connects the configured broker. A broker that cannot be reached
// disables events instead of failing startup.
func (a *app) publisher(cfg *config.Config, log *logger.Logger) (ports.EventPublisher, error) {
	switch cfg.EventsBroker {
	case config.BrokerNone:
		return nil, nil
	case config.BrokerKafka:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, producer)
		log.Info("publishing order events to kafka", zap.String("topic", cfg.KafkaTopic))
		return adapters.NewKafkaPublisher(producer), nil
	case config.BrokerRabbitMQ:
		conn, err := rabbitmq.NewConnection(cfg.RabbitMQURL, log)
		if err != nil {
			log.Warn("failed to connect to RabbitMQ, events will be disabled: " + err.Error())
			return nil, nil
		}
		a.closers = append(a.closers, conn)
		a.rabbit = conn

		pub, err := rabbitmq.NewPublisher(conn, events.ExchangeOrders, log)
		if err != nil {
			log.Warn("failed to create publisher: " + err.Error())
			return nil, nil
		}
		return adapters.NewRabbitMQPublisher(pub, log), nil
	default:
		return nil, fmt.Errorf("unknown events broker %q", cfg.EventsBroker)
	}
}

func newRouter(cfg *config.Config, log *logger.Logger, a *app) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.TraceID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.CORS())
	router.Use(middleware.Timeout(cfg.HTTPTimeout))

	api := router.Group("/api/v1")
	infrastructure.NewHTTPHandler(a.useCase).RegisterRoutes(api)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		if err := a.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

func newGRPCServer(cfg *config.Config, log *logger.Logger, useCase *application.OrderUseCase) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(grpcpkg.UnaryServerInterceptor(log, cfg.GRPCTimeout)),
		grpc.StreamInterceptor(grpcpkg.StreamServerInterceptor(log)),
	}

	if cfg.GRPCMTLSEnabled {
		creds, err := tls.GRPCServerCredentials(tls.Files{
			CertFile: cfg.TLSCertFile,
			KeyFile:  cfg.TLSKeyFile,
			CAFile:   cfg.TLSCAFile,
		})
		if err != nil {
			return nil, fmt.Errorf("load TLS config: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
		log.Info("gRPC mTLS enabled")
	}

	server := grpc.NewServer(opts...)
	infrastructure.RegisterOrderServiceServer(server, infrastructure.NewGRPCServer(useCase))
	return server, nil
}
