package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/cache"
	"github.com/tokmz/qim/pkg/config"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/orm"
	"github.com/tokmz/qim/pkg/tracing"
)

// NewLogger 按配置创建根日志
func NewLogger(s *config.Settings) (logger.Logger, error) {
	level, err := logger.ParseLevel(s.Log.Level)
	if err != nil {
		return nil, err
	}
	cfg := &logger.Config{
		Level:            level,
		Format:           logger.Format(strings.ToLower(s.Log.Format)),
		Console:          true,
		File:             s.Log.File,
		EnableCaller:     true,
		EnableStacktrace: true,
	}
	if s.Log.Sampling {
		cfg.Sampling = &logger.SamplingConfig{}
	}
	if r := s.Log.Rotate; r.Filename != "" {
		cfg.Rotate = &logger.RotateConfig{
			Filename:   r.Filename,
			MaxSize:    r.MaxSize,
			MaxAge:     r.MaxAge,
			MaxBackups: r.MaxBackups,
			LocalTime:  true,
			Compress:   r.Compress,
		}
	}
	return logger.New(cfg)
}

// OpenStore 按配置打开存储，memory 驱动不落盘
func OpenStore(s *config.Settings, log logger.Logger) (store.Store, error) {
	if strings.EqualFold(s.Store.Driver, "memory") {
		return store.NewMemory(), nil
	}
	cfg := orm.DefaultConfig()
	cfg.Type = orm.DBType(strings.ToLower(s.Store.Driver))
	cfg.DSN = s.Store.DSN
	cfg.Replicas = s.Store.Replicas
	cfg.LogLevel = s.Store.LogLevel
	cfg.Tracing = s.Store.Tracing
	cfg.Logger = log.Named("orm")
	return store.Open(cfg, s.Store.AutoMigrate)
}

// redisConfig 缓存与中继共用的 Redis 连接配置
func redisConfig(s *config.Settings) *cache.RedisConfig {
	cfg := cache.DefaultRedisConfig()
	r := s.Cache.Redis
	if r.Mode != "" {
		cfg.Mode = cache.RedisMode(strings.ToLower(r.Mode))
	}
	cfg.Addr = r.Addr
	cfg.Addrs = r.Addrs
	cfg.MasterName = r.MasterName
	cfg.Password = r.Password
	cfg.DB = r.DB
	if r.PoolSize > 0 {
		cfg.PoolSize = r.PoolSize
	}
	return cfg
}

func needsRedis(s *config.Settings) bool {
	return strings.EqualFold(s.Cache.Driver, "redis") || strings.EqualFold(s.Broker.Relay, "redis")
}

// foundationModule 日志、链路追踪、存储、缓存
func foundationModule() fx.Option {
	return fx.Module("foundation",
		fx.Provide(
			NewLogger,
			provideTracer,
			provideStore,
			provideRedis,
			provideCache,
		),
		// 追踪必须先于存储与缓存初始化，它们在构建时读取全局 TracerProvider
		fx.Invoke(func(*trace.TracerProvider) {}),
		fx.Invoke(func(log logger.Logger, lc fx.Lifecycle) {
			lc.Append(fx.StopHook(func() { _ = log.Sync() }))
		}),
	)
}

func provideTracer(lc fx.Lifecycle, s *config.Settings, log logger.Logger) (*trace.TracerProvider, error) {
	if !s.Tracing.Enabled {
		return nil, nil
	}
	cfg := tracing.DefaultConfig()
	cfg.ServiceName = s.Tracing.ServiceName
	cfg.ExporterType = strings.ToLower(s.Tracing.Exporter)
	cfg.ExporterEndpoint = s.Tracing.Endpoint
	cfg.Insecure = s.Tracing.Insecure
	cfg.SamplingRate = s.Tracing.SamplingRate

	tp, err := tracing.NewTracerProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	log.Info("tracing enabled",
		zap.String("exporter", cfg.ExporterType),
		zap.String("endpoint", cfg.ExporterEndpoint))

	lc.Append(fx.StopHook(func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}))
	return tp, nil
}

func provideStore(lc fx.Lifecycle, s *config.Settings, log logger.Logger) (store.Store, error) {
	st, err := OpenStore(s, log)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", zap.String("driver", s.Store.Driver))
	lc.Append(fx.StopHook(st.Close))
	return st, nil
}

// provideRedis 只有缓存或中继需要时才建立连接，否则返回 nil
func provideRedis(lc fx.Lifecycle, s *config.Settings) (redis.UniversalClient, error) {
	if !needsRedis(s) {
		return nil, nil
	}
	client, err := cache.NewRedisClient(context.Background(), redisConfig(s))
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	lc.Append(fx.StopHook(client.Close))
	return client, nil
}

func provideCache(lc fx.Lifecycle, s *config.Settings, client redis.UniversalClient) (cache.Cache, error) {
	var (
		c   cache.Cache
		err error
	)
	if strings.EqualFold(s.Cache.Driver, "redis") {
		c = cache.NewRedis(client, cache.WithKeyPrefix(s.Cache.KeyPrefix))
	} else {
		mem := cache.DefaultMemoryConfig()
		if s.Cache.SweepInterval > 0 {
			mem.SweepInterval = s.Cache.SweepInterval
		}
		c, err = cache.NewWithOptions(cache.WithMemory(mem), cache.WithKeyPrefix(s.Cache.KeyPrefix))
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(c.Close))
	}
	if s.Cache.Tracing {
		c = cache.NewTracing(c)
	}
	return c, nil
}
