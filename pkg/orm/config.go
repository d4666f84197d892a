package orm

import (
	"time"

	"github.com/tokmz/qim/pkg/logger"
)

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库配置
type Config struct {
	Type DBType
	DSN  string

	// 连接池
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	SkipDefaultTransaction bool
	PrepareStmt            bool

	// 日志：Logger 为空时不输出 SQL 日志
	Logger        logger.Logger
	LogLevel      string // silent / error / warn / info
	SlowThreshold time.Duration

	TablePrefix string

	// 读写分离：只读副本 DSN 列表，为空时不启用
	Replicas []string
	Policy   string // random / round_robin

	// 链路追踪
	Tracing bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PrepareStmt:     true,
		LogLevel:        "warn",
		SlowThreshold:   200 * time.Millisecond,
	}
}
