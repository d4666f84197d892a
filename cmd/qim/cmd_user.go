package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tokmz/qim/internal/store"
)

type userCmd struct {
	flags *flags
	user  store.User
}

func newUserCmd(f *flags) *userCmd {
	return &userCmd{flags: f}
}

// Register 注册 user 命令组
func (cmd *userCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:  "user",
		Usage: "Manage users",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a user",
				UsageText: "qim user create --username alice --first-name Alice --last-name Liddell",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true, Destination: &cmd.user.Username},
					&cli.StringFlag{Name: "first-name", Destination: &cmd.user.FirstName},
					&cli.StringFlag{Name: "last-name", Destination: &cmd.user.LastName},
					&cli.StringFlag{Name: "email", Destination: &cmd.user.Email},
				},
				Action: cmd.create,
			},
		},
	})
	return root
}

func (cmd *userCmd) create(ctx context.Context, c *cli.Command) error {
	if cmd.flags.Settings.Store.Driver == "memory" {
		fmt.Fprintln(os.Stderr, "warning: store.driver is memory, the user will not persist")
	}

	st, err := openStore(cmd.flags)
	if err != nil {
		return err
	}
	defer st.Close()

	u := cmd.user
	if err := st.CreateUser(ctx, &u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	_, err = fmt.Fprintf(c.Root().Writer, "created user %s (%s)\n", u.Username, u.ID)
	return err
}
