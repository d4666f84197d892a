package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tokmz/qim/internal/app"
	"github.com/tokmz/qim/internal/auth"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/logger"
)

type tokenCmd struct {
	flags    *flags
	username string
}

func newTokenCmd(f *flags) *tokenCmd {
	return &tokenCmd{flags: f}
}

// Register 注册 token 命令
func (cmd *tokenCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:        "token",
		Usage:       "Mint an access token for an existing user",
		UsageText:   "qim token --username alice",
		Description: "Signs a JWT with the configured secret. The user must exist in the configured store.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "username",
				Aliases:     []string{"u"},
				Usage:       "username of the token subject",
				Required:    true,
				Destination: &cmd.username,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *tokenCmd) run(ctx context.Context, c *cli.Command) error {
	st, err := openStore(cmd.flags)
	if err != nil {
		return err
	}
	defer st.Close()

	u, err := st.FindUserByUsername(ctx, cmd.username)
	if err != nil {
		return fmt.Errorf("find user %q: %w", cmd.username, err)
	}

	token, err := auth.NewIssuer(app.AuthConfig(cmd.flags.Settings)).Issue(u)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(c.Root().Writer, token)
	return err
}

// openStore 命令行工具使用的存储，日志只输出错误
func openStore(f *flags) (store.Store, error) {
	log, err := logger.New(&logger.Config{Level: logger.ErrorLevel, Console: true})
	if err != nil {
		return nil, err
	}
	st, err := app.OpenStore(f.Settings, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
