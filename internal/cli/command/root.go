package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rmap-go/internal/cli/config"
	"github.com/yndnr/rmap-go/internal/cli/output"
	"github.com/yndnr/rmap-go/internal/infra/buildinfo"
	"github.com/yndnr/rmap-go/internal/infra/tlsroots"
	"github.com/yndnr/rmap-go/internal/telemetry/logger"
	"github.com/yndnr/rmap-go/pkg/redisconn"
	"github.com/yndnr/rmap-go/pkg/rmap"
)

const sessionKey = "session"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "rmap-cli",
		Usage:   "Atomic hash map operations against a Redis-protocol store",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: append(hashCommands(),
			PingCommand(),
			ConfigCommand(),
		),
		Before: func(c *cli.Context) error {
			s, err := newSession(c)
			if err != nil {
				return err
			}
			c.App.Metadata[sessionKey] = s
			return nil
		},
		After: func(c *cli.Context) error {
			if s, ok := c.App.Metadata[sessionKey].(*session); ok {
				return s.Close()
			}
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file",
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Store address (e.g., localhost:6379)",
			EnvVars: []string{"RMAP_SERVER"},
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"a"},
			Usage:   "Password sent with AUTH",
			EnvVars: []string{"RMAP_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "Connect with TLS",
		},
		&cli.StringFlag{
			Name:  "tls-ca",
			Usage: "PEM bundle of CAs trusted in addition to the system roots (implies --tls)",
		},
		&cli.StringFlag{
			Name:  "tls-server-name",
			Usage: "Server name to verify (implies --tls)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "Deadline for the whole command",
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Attempts per conditional operation before giving up (0 = until timeout)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log connection and retry activity to stderr",
		},
	}
}

// session holds the effective configuration and the lazily opened
// connection for one invocation.
type session struct {
	cfg    *config.CLIConfig
	logger *slog.Logger

	pool   *redisconn.Pool
	client *rmap.Client
}

// newSession loads the config file and applies global flags on top.
func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("server") {
		cfg.Server = c.String("server")
	}
	if c.IsSet("password") {
		cfg.Password = c.String("password")
	}
	if c.IsSet("tls") {
		cfg.TLS = c.Bool("tls")
	}
	if c.IsSet("tls-ca") {
		cfg.TLSCAFile, cfg.TLS = c.String("tls-ca"), true
	}
	if c.IsSet("tls-server-name") {
		cfg.TLSServerName, cfg.TLS = c.String("tls-server-name"), true
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("max-attempts") {
		cfg.MaxAttempts = c.Int("max-attempts")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	errWriter := c.App.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	log, err := logger.New(logger.Config{Level: level, Format: "text", Output: errWriter})
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: log}, nil
}

// connect opens the pool and client on first use.
func (s *session) connect() (*rmap.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	opts := redisconn.DefaultOptions(s.cfg.Server)
	opts.Password = s.cfg.Password
	opts.MaxIdle = 2
	opts.Logger = s.logger
	if s.cfg.TLS {
		tlsCfg, err := tlsroots.ClientConfig(tlsroots.ClientOptions{
			CAFile:     s.cfg.TLSCAFile,
			ServerName: s.cfg.TLSServerName,
		})
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsCfg
	}
	pool, err := redisconn.NewPool(opts)
	if err != nil {
		return nil, err
	}

	client, err := rmap.New(rmap.PoolOf(pool),
		rmap.WithLogger(s.logger),
		rmap.WithRetryPolicy(rmap.RetryPolicy{
			MaxAttempts: s.cfg.MaxAttempts,
			Backoff:     rmap.ExponentialBackoff(time.Millisecond, 100*time.Millisecond),
		}),
	)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	s.pool, s.client = pool, client
	return client, nil
}

// Close releases the connection, if one was opened.
func (s *session) Close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	return errors.Join(errs...)
}

func sessionFrom(c *cli.Context) (*session, error) {
	if s, ok := c.App.Metadata[sessionKey].(*session); ok {
		return s, nil
	}
	return nil, errors.New("session not initialized")
}

// commandContext bounds one invocation by the configured timeout.
func commandContext(c *cli.Context, s *session) (context.Context, context.CancelFunc) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// render writes data in the configured output format.
func render(c *cli.Context, s *session, data any) error {
	format, err := output.ParseFormat(s.cfg.Output)
	if err != nil {
		return err
	}
	w := c.App.Writer
	if w == nil {
		w = os.Stdout
	}
	return output.NewFormatter(format).Format(w, data)
}

// exactArgs checks the positional argument count.
func exactArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s: expected %d arguments (%s), got %d", c.Command.Name, n, c.Command.ArgsUsage, c.NArg())
	}
	return nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
