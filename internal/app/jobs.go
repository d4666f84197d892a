package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/config"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

// cronLogger 把 cron 的键值日志转给 zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// jobsModule 定时任务
func jobsModule() fx.Option {
	return fx.Module("jobs",
		fx.Provide(newScheduler),
		fx.Invoke(registerJobs),
	)
}

func newScheduler(log logger.Logger) *cron.Cron {
	cl := cronLogger{log: logger.Zap(log.Named("cron")).Sugar()}
	return cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// registerJobs 注册任务并随应用启停
func registerJobs(lc fx.Lifecycle, c *cron.Cron, s *config.Settings, counters *ws.Counters, manager *ws.Manager, log logger.Logger) error {
	if spec := s.Jobs.StatsReport; spec != "" {
		report := statsReport(counters, manager, log.Named("stats"))
		if _, err := c.AddFunc(spec, report); err != nil {
			return fmt.Errorf("schedule stats report %q: %w", spec, err)
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return nil
}

// statsReport 输出连接与投递计数
func statsReport(counters *ws.Counters, manager *ws.Manager, log logger.Logger) func() {
	return func() {
		snap := counters.Snapshot()
		log.Info("realtime stats",
			zap.Int("sessions", manager.Count()),
			zap.Int64("total_connections", snap.TotalConnections),
			zap.Int64("frames", snap.Frames),
			zap.Int64("frame_errors", snap.FrameErrors),
			zap.Int64("delivered", snap.Delivered),
			zap.Int64("dropped", snap.Dropped),
			zap.Int64("slow_consumer_disconnects", snap.SlowConsumerKicked),
			zap.Int64("auth_failures", snap.AuthFailures),
		)
	}
}
