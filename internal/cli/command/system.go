package command

import (
	"time"

	"github.com/urfave/cli/v2"
)

type pingResult struct {
	Server  string `json:"server" yaml:"server"`
	Reply   string `json:"reply" yaml:"reply"`
	Latency string `json:"latency" yaml:"latency"`
}

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Check that the store is reachable",
		Action: ping,
	}
}

func ping(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	if _, err := s.connect(); err != nil {
		return err
	}

	ctx, cancel := commandContext(c, s)
	defer cancel()

	start := time.Now()
	conn, err := s.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	v, err := conn.Do(ctx, "PING")
	if err != nil {
		return err
	}
	reply, err := v.Bytes()
	if err != nil {
		return err
	}
	return render(c, s, pingResult{
		Server:  s.cfg.Server,
		Reply:   string(reply),
		Latency: time.Since(start).Round(time.Microsecond).String(),
	})
}
