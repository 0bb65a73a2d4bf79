package main

import (
	"PPChat/global/config"
	"PPChat/logger"
	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	"PPChat/module/chat/message"
	"PPChat/service/chat"
	"PPChat/service/kafka"
	mgoSrv "PPChat/service/mgo"
	"PPChat/service/natsx"
	"PPChat/service/storage"
	redisSrv "PPChat/service/storage/redis"
	"PPChat/tools/security"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	mongoReadyTimeout = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := config.Load(); err != nil {
		logger.Error("[Main] load config failed", zap.Error(err))
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error("[Main] exit with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(ctx context.Context) error {
	if err := config.ConfigAll(ctx); err != nil {
		return err
	}

	// 1) 存储
	store, err := newStore(ctx)
	if err != nil {
		return err
	}

	// 2) presence 镜像（可选）
	var mirror chat.PresenceMirror
	var presence *storage.RedisPresence
	if redisSrv.Ready() {
		presence = storage.NewRedisPresence(redisSrv.GetRedis(), storage.PresenceConfig{
			NodeID: config.Global.NodeID,
			TTL:    config.Global.Redis.PresenceTTL,
		})
		if n, err := presence.ClearNode(ctx); err != nil {
			logger.Warn("[Main] clear stale presence failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("[Main] cleared stale presence", zap.Int64("count", n))
		}
		mirror = presence
	}

	// 3) NATS（可选）
	nm, err := config.ConfigNats()
	if err != nil {
		return err
	}
	var publishers chat.Publishers
	if nm != nil {
		publishers = append(publishers, chat.NewNatsPublisher(nm))
	}

	// 4) Kafka 事件流（可选）
	kp, err := config.ConfigKafka()
	if err != nil {
		closeNats(nm)
		return err
	}
	if kp != nil {
		publishers = append(publishers, chat.NewKafkaPublisher(kp))
	}

	hub := chat.NewHub(store, chat.NewRegistry(mirror), publishers)
	if nm != nil {
		if err := chat.NewLifecycleConsumer(hub).Subscribe(nm); err != nil {
			closeNats(nm)
			closeKafka(kp)
			return err
		}
	}

	// 5) HTTP + WebSocket
	verifier := security.NewVerifier(config.JwtOptions())
	midsec.Configure(verifier, config.Global.InternalKey)
	mid.Config(mid.Origin(config.Global.AllowedOrigins))

	srv := chat.NewServer(hub, verifier, config.WsServerConfig())
	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(config.Global.Port),
		Handler:           newRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6) gRPC health
	gs, hs, lis, err := newHealthServer(config.Global.GrpcPort)
	if err != nil {
		closeNats(nm)
		closeKafka(kp)
		return err
	}
	if config.Global.Storage != config.StorageMemory {
		mgoSrv.Manager().OnStatus(func(up bool) {
			st := healthpb.HealthCheckResponse_NOT_SERVING
			if up {
				st = healthpb.HealthCheckResponse_SERVING
			}
			hs.SetServingStatus(storeHealthService, st)
		})
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("[gRPC] listening", zap.String("addr", lis.Addr().String()))
		if err := gs.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("[HTTP] listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("[Main] shutting down")
	case err = <-errCh:
		logger.Error("[Main] server failed", zap.Error(err))
	}

	shutdown(hub, httpSrv, gs, hs, nm, kp, presence)
	return err
}

func newStore(ctx context.Context) (message.Store, error) {
	if config.Global.Storage == config.StorageMemory {
		logger.Warn("[Main] using in-memory store, data is not persisted")
		return message.NewMemStore(), nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, mongoReadyTimeout)
	defer cancel()
	if err := mgoSrv.WaitReady(waitCtx, mgoSrv.Manager()); err != nil {
		if last := mgoSrv.Err(); last != nil {
			err = last
		}
		return nil, err
	}
	store := message.NewManagedMongoStore(mgoSrv.TryGetDB)
	if err := store.EnsureIndexes(waitCtx); err != nil {
		logger.Warn("[Main] ensure indexes failed", zap.Error(err))
	}
	return store, nil
}

func newRouter(srv *chat.Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mid.RequestLogger(), mid.Manager().Use())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"rooms":    srv.Hub().Sessions().Len(),
			"presence": srv.Hub().Registry().Len(),
		})
	})
	srv.Routes(r)
	srv.InternalRoutes(r)
	srv.UserRoutes(r)
	return r
}

const (
	gatewayHealthService = "ppchat.Gateway"
	storeHealthService   = "ppchat.Store"
)

func newHealthServer(port int) (*grpc.Server, *health.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, nil, nil, err
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(gatewayHealthService, healthpb.HealthCheckResponse_SERVING)
	return gs, hs, lis, nil
}

// shutdown 先关连接再停服务
func shutdown(hub *chat.Hub, httpSrv *http.Server, gs *grpc.Server, hs *health.Server, nm *natsx.NatsManager, kp *kafka.Producer, presence *storage.RedisPresence) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Shutdown()
	hs.Shutdown()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("[Main] http shutdown", zap.Error(err))
	}
	gs.GracefulStop()
	closeNats(nm)
	closeKafka(kp)
	if presence != nil {
		if _, err := presence.ClearNode(ctx); err != nil {
			logger.Warn("[Main] clear presence", zap.Error(err))
		}
	}
	_ = redisSrv.CloseRedis()
}

func closeNats(nm *natsx.NatsManager) {
	if nm == nil {
		return
	}
	if err := nm.Close(); err != nil {
		logger.Warn("[Main] nats close", zap.Error(err))
	}
}

func closeKafka(kp *kafka.Producer) {
	if kp == nil {
		return
	}
	if err := kp.Close(); err != nil {
		logger.Warn("[Main] kafka close", zap.Error(err))
	}
}
