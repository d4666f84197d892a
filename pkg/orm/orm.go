package orm

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var dialectors = map[DBType]func(dsn string) gorm.Dialector{
	MySQL:      mysql.Open,
	PostgreSQL: postgres.Open,
	SQLite:     sqlite.Open,
	SQLServer:  sqlserver.Open,
}

func getDialector(typ DBType, dsn string) (gorm.Dialector, error) {
	open, ok := dialectors[typ]
	if !ok {
		return nil, fmt.Errorf("orm: unsupported database type %q", typ)
	}
	return open(dsn), nil
}

// New 打开数据库并配置连接池
// 配置了 Replicas 时读请求走只读副本，Tracing 为 true 时注册追踪插件
func New(cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("orm: DSN is required")
	}
	primary, err := getDialector(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(primary, &gorm.Config{
		SkipDefaultTransaction: cfg.SkipDefaultTransaction,
		PrepareStmt:            cfg.PrepareStmt,
		Logger:                 newGormLogger(cfg),
		NamingStrategy:         schema.NamingStrategy{TablePrefix: cfg.TablePrefix},
	})
	if err != nil {
		return nil, fmt.Errorf("orm: open %s: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("orm: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	var plugins []gorm.Plugin
	if len(cfg.Replicas) > 0 {
		resolver, err := newResolver(cfg)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		plugins = append(plugins, resolver)
	}
	if cfg.Tracing {
		plugins = append(plugins, tracingPlugin{})
	}
	for _, p := range plugins {
		if err := db.Use(p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("orm: use %s: %w", p.Name(), err)
		}
	}
	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// newResolver 只读副本，写操作仍走主库
func newResolver(cfg *Config) (*dbresolver.DBResolver, error) {
	replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
	for _, dsn := range cfg.Replicas {
		d, err := getDialector(cfg.Type, dsn)
		if err != nil {
			return nil, err
		}
		replicas = append(replicas, d)
	}

	var policy dbresolver.Policy = dbresolver.RandomPolicy{}
	if cfg.Policy == "round_robin" {
		policy = dbresolver.RoundRobinPolicy()
	}
	return dbresolver.Register(dbresolver.Config{Replicas: replicas, Policy: policy}).
		SetMaxIdleConns(cfg.MaxIdleConns).
		SetMaxOpenConns(cfg.MaxOpenConns).
		SetConnMaxLifetime(cfg.ConnMaxLifetime), nil
}
