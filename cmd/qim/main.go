package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tokmz/qim"
	"github.com/tokmz/qim/pkg/config"
)

var (
	// 构建信息，通过 -ldflags 注入
	commit = "HEAD"
	date   = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s) %s", qim.Version, short, date)
}

// flags 全局参数，Before 中加载配置后供子命令使用
type flags struct {
	ConfigPath string
	LogLevel   string

	Config   *config.Config
	Settings *config.Settings
}

func main() {
	if err := newRootCmd(&flags{}).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(f *flags) *cli.Command {
	app := &cli.Command{
		Name:      "qim",
		Usage:     "Real-time chat server",
		UsageText: "qim [global options] command [command options]",
		Description: `qim serves a REST API and a STOMP-style WebSocket endpoint for
direct and group conversations.

Run 'qim' or 'qim serve' to start the server.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("QIM_CONFIG"),
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error), overrides the config file",
				Sources:     cli.EnvVars("QIM_LOG_LEVEL"),
				Destination: &f.LogLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, s, err := config.Load(f.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if f.LogLevel != "" {
				s.Log.Level = f.LogLevel
			}
			f.Config, f.Settings = cfg, s
			return ctx, nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'qim --help' for usage", c.Args().First())
			}
			return runServe(ctx, f)
		},
	}

	app = newServeCmd(f).Register(app)
	app = newTokenCmd(f).Register(app)
	app = newUserCmd(f).Register(app)
	app = newConfigCmd(f).Register(app)
	return app
}
