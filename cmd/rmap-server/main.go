package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rmap-go/internal/infra/buildinfo"
	"github.com/yndnr/rmap-go/pkg/passwd"
)

func main() {
	app := &cli.App{
		Name:    "rmap-server",
		Usage:   "Redis-protocol hash store with optimistic transactions",
		Version: buildinfo.String(),
		Flags:   serverFlags(),
		Action:  run,
		Commands: []*cli.Command{
			hashPasswordCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// serverFlags returns the flags of rmap-server. Every flag except config
// overrides one configuration key.
func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			EnvVars: []string{"RMAP_CONFIG"},
		},
		&cli.StringFlag{Name: "address", Usage: "RESP listen address"},
		&cli.StringFlag{Name: "password", Usage: "Password clients must AUTH with"},
		&cli.StringFlag{Name: "metrics-address", Usage: "Prometheus listen address (empty disables)"},
		&cli.StringFlag{Name: "backend", Usage: "Storage backend: memory, badger"},
		&cli.StringFlag{Name: "data-dir", Usage: "Badger data directory"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: json, text"},
	}
}

// hashPasswordCommand prints an Argon2id hash for server.redis.password_hash.
// The password is read from the first argument or, if absent, from the first
// line of stdin.
func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "Print an Argon2id hash for server.redis.password_hash",
		ArgsUsage: "[PASSWORD]",
		Action: func(c *cli.Context) error {
			password := c.Args().First()
			if password == "" {
				line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password is required")
			}
			hash, err := passwd.New(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, hash)
			return err
		},
	}
}

// flagKeys maps flags to the configuration keys they override.
var flagKeys = map[string]string{
	"address":         "server.redis.address",
	"password":        "server.redis.password",
	"metrics-address": "server.metrics.address",
	"backend":         "storage.backend",
	"data-dir":        "storage.badger.dir",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// overrides collects the flags that were set on the command line.
func overrides(c *cli.Context) map[string]any {
	out := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}
