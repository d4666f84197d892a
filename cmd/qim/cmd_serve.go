package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/tokmz/qim/internal/app"
)

type serveCmd struct {
	flags *flags
}

func newServeCmd(f *flags) *serveCmd {
	return &serveCmd{flags: f}
}

// Register 注册 serve 命令
func (cmd *serveCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the chat server",
		UsageText: "qim serve",
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, cmd.flags)
		},
	})
	return root
}

// runServe 启动服务直到收到 SIGINT/SIGTERM
func runServe(ctx context.Context, f *flags) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(f.Config, f.Settings)
	startCtx, cancel := context.WithTimeout(ctx, a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancel()
	return a.Stop(stopCtx)
}
