package main

import (
	"context"

	"github.com/goccy/go-yaml"
	"github.com/urfave/cli/v3"
)

type configCmd struct {
	flags *flags
}

func newConfigCmd(f *flags) *configCmd {
	return &configCmd{flags: f}
}

// Register 注册 config 命令
func (cmd *configCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:        "config",
		Usage:       "Print the effective configuration",
		UsageText:   "qim config",
		Description: "Prints defaults merged with the config file and QIM_* environment variables as YAML.",
		Action:      cmd.run,
	})
	return root
}

func (cmd *configCmd) run(ctx context.Context, c *cli.Command) error {
	all := cmd.flags.Config.AllSettings()
	if cmd.flags.LogLevel != "" {
		if l, ok := all["log"].(map[string]any); ok {
			l["level"] = cmd.flags.LogLevel
		}
	}
	out, err := yaml.Marshal(all)
	if err != nil {
		return err
	}
	_, err = c.Root().Writer.Write(out)
	return err
}
