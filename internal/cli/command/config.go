package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rmap-go/internal/cli/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI local configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShow,
			},
			{
				Name:   "path",
				Usage:  "Print the config file path",
				Action: configPath,
			},
			{
				Name:   "save",
				Usage:  "Write the effective configuration to the config file",
				Action: configSave,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	shown := *s.cfg
	if shown.Password != "" {
		shown.Password = "******"
	}
	return render(c, s, &shown)
}

func configPath(c *cli.Context) error {
	_, err := fmt.Fprintln(c.App.Writer, c.String("config"))
	return err
}

func configSave(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	path := c.String("config")
	if err := config.Save(s.cfg, path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "saved %s\n", path)
	return err
}
