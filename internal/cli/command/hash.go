package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rmap-go/pkg/rmap"
)

// valueResult reports the value currently stored under a field.
type valueResult struct {
	Hash  string  `json:"hash" yaml:"hash"`
	Field string  `json:"field" yaml:"field"`
	Value *string `json:"value" yaml:"value"`
}

// writeResult reports a write that may have displaced a previous value.
type writeResult struct {
	Hash     string  `json:"hash" yaml:"hash"`
	Field    string  `json:"field" yaml:"field"`
	Applied  bool    `json:"applied" yaml:"applied"`
	Previous *string `json:"previous" yaml:"previous"`
}

// condResult reports whether a compare-and-set applied.
type condResult struct {
	Hash    string `json:"hash" yaml:"hash"`
	Field   string `json:"field" yaml:"field"`
	Applied bool   `json:"applied" yaml:"applied"`
}

type containsResult struct {
	Hash  string `json:"hash" yaml:"hash"`
	Found bool   `json:"found" yaml:"found"`
}

type lenResult struct {
	Hash  string `json:"hash" yaml:"hash"`
	Len   int    `json:"len" yaml:"len"`
	Empty bool   `json:"empty" yaml:"empty"`
}

type entryRow struct {
	Field string `json:"field" yaml:"field"`
	Value string `json:"value" yaml:"value"`
}

type bulkResult struct {
	Hash  string `json:"hash" yaml:"hash"`
	Count int    `json:"count" yaml:"count"`
}

func optString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

func stringsOf(raw [][]byte) []string {
	out := make([]string, len(raw))
	for i, b := range raw {
		out[i] = string(b)
	}
	return out
}

// hashAction adapts an operation on one hash to a cli.ActionFunc. The first
// positional argument names the hash; the rest are passed to fn.
func hashAction(nargs int, fn func(ctx context.Context, h *rmap.Hash, args []string) (any, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := exactArgs(c, nargs+1); err != nil {
			return err
		}
		s, err := sessionFrom(c)
		if err != nil {
			return err
		}
		client, err := s.connect()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(c, s)
		defer cancel()

		args := c.Args().Slice()
		result, err := fn(ctx, client.Hash(args[0]), args[1:])
		if err != nil {
			return err
		}
		return render(c, s, result)
	}
}

// hashCommands returns one command per map operation. The implicit help
// subcommand is hidden so that hashes named "help" or "h" stay addressable.
func hashCommands() []*cli.Command {
	cmds := []*cli.Command{
		{
			Name:      "get",
			Usage:     "Get the value of a field",
			ArgsUsage: "HASH FIELD",
			Action: hashAction(1, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				v, err := h.Get(ctx, []byte(a[0]))
				return valueResult{Hash: h.Name(), Field: a[0], Value: optString(v)}, err
			}),
		},
		{
			Name:      "put",
			Aliases:   []string{"set"},
			Usage:     "Set a field and show the value it replaced",
			ArgsUsage: "HASH FIELD VALUE",
			Action: hashAction(2, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				prev, err := h.Put(ctx, []byte(a[0]), []byte(a[1]))
				return writeResult{Hash: h.Name(), Field: a[0], Applied: err == nil, Previous: optString(prev)}, err
			}),
		},
		{
			Name:      "remove",
			Aliases:   []string{"rm"},
			Usage:     "Delete a field and show the value it held",
			ArgsUsage: "HASH FIELD",
			Action: hashAction(1, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				prev, err := h.Remove(ctx, []byte(a[0]))
				return writeResult{Hash: h.Name(), Field: a[0], Applied: prev != nil, Previous: optString(prev)}, err
			}),
		},
		{
			Name:      "remove-if",
			Usage:     "Atomically delete a field only if it holds EXPECTED",
			ArgsUsage: "HASH FIELD EXPECTED",
			Action: hashAction(2, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				ok, err := h.RemoveIf(ctx, []byte(a[0]), []byte(a[1]))
				return condResult{Hash: h.Name(), Field: a[0], Applied: ok}, err
			}),
		},
		{
			Name:      "replace-if",
			Aliases:   []string{"cas"},
			Usage:     "Atomically set a field to NEW only if it holds OLD",
			ArgsUsage: "HASH FIELD OLD NEW",
			Action: hashAction(3, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				ok, err := h.ReplaceIf(ctx, []byte(a[0]), []byte(a[1]), []byte(a[2]))
				return condResult{Hash: h.Name(), Field: a[0], Applied: ok}, err
			}),
		},
		{
			Name:      "replace",
			Usage:     "Atomically set a field only if it exists, showing the replaced value",
			ArgsUsage: "HASH FIELD VALUE",
			Action: hashAction(2, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				prev, err := h.Replace(ctx, []byte(a[0]), []byte(a[1]))
				return writeResult{Hash: h.Name(), Field: a[0], Applied: prev != nil, Previous: optString(prev)}, err
			}),
		},
		{
			Name:      "put-if-absent",
			Aliases:   []string{"setnx"},
			Usage:     "Set a field only if it does not exist, showing the existing value otherwise",
			ArgsUsage: "HASH FIELD VALUE",
			Action: hashAction(2, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				existing, err := h.PutIfAbsent(ctx, []byte(a[0]), []byte(a[1]))
				return writeResult{Hash: h.Name(), Field: a[0], Applied: err == nil && existing == nil, Previous: optString(existing)}, err
			}),
		},
		{
			Name:      "contains-key",
			Aliases:   []string{"exists"},
			Usage:     "Report whether a field exists",
			ArgsUsage: "HASH FIELD",
			Action: hashAction(1, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				ok, err := h.ContainsKey(ctx, []byte(a[0]))
				return containsResult{Hash: h.Name(), Found: ok}, err
			}),
		},
		{
			Name:      "contains-value",
			Usage:     "Report whether any field holds VALUE",
			ArgsUsage: "HASH VALUE",
			Action: hashAction(1, func(ctx context.Context, h *rmap.Hash, a []string) (any, error) {
				ok, err := h.ContainsValue(ctx, []byte(a[0]))
				return containsResult{Hash: h.Name(), Found: ok}, err
			}),
		},
		{
			Name:      "len",
			Usage:     "Count the fields of a hash",
			ArgsUsage: "HASH",
			Action: hashAction(0, func(ctx context.Context, h *rmap.Hash, _ []string) (any, error) {
				n, err := h.Len(ctx)
				return lenResult{Hash: h.Name(), Len: n, Empty: n == 0}, err
			}),
		},
		{
			Name:      "keys",
			Usage:     "List field names",
			ArgsUsage: "HASH",
			Action: hashAction(0, func(ctx context.Context, h *rmap.Hash, _ []string) (any, error) {
				keys, err := h.Keys(ctx)
				return stringsOf(keys), err
			}),
		},
		{
			Name:      "values",
			Usage:     "List values",
			ArgsUsage: "HASH",
			Action: hashAction(0, func(ctx context.Context, h *rmap.Hash, _ []string) (any, error) {
				vals, err := h.Values(ctx)
				return stringsOf(vals), err
			}),
		},
		{
			Name:      "entries",
			Aliases:   []string{"getall"},
			Usage:     "List fields with their values",
			ArgsUsage: "HASH",
			Action: hashAction(0, func(ctx context.Context, h *rmap.Hash, _ []string) (any, error) {
				entries, err := h.Entries(ctx)
				rows := make([]entryRow, len(entries))
				for i, e := range entries {
					rows[i] = entryRow{Field: string(e.Field), Value: string(e.Value)}
				}
				return rows, err
			}),
		},
		{
			Name:      "put-all",
			Usage:     "Set several fields in one command",
			ArgsUsage: "HASH FIELD=VALUE...",
			Action:    putAll,
		},
		{
			Name:      "clear",
			Usage:     "Delete every field of a hash",
			ArgsUsage: "HASH",
			Action: hashAction(0, func(ctx context.Context, h *rmap.Hash, _ []string) (any, error) {
				n, err := h.Len(ctx)
				if err != nil {
					return nil, err
				}
				return bulkResult{Hash: h.Name(), Count: n}, h.Clear(ctx)
			}),
		},
	}
	for _, cmd := range cmds {
		cmd.HideHelpCommand = true
	}
	return cmds
}

// putAll takes a variable number of pairs, so it does not go through
// hashAction.
func putAll(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("put-all: expected HASH and at least one FIELD=VALUE")
	}
	entries, err := parsePairs(c.Args().Tail())
	if err != nil {
		return err
	}

	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	client, err := s.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c, s)
	defer cancel()

	h := client.Hash(c.Args().First())
	if err := h.PutAll(ctx, entries); err != nil {
		return err
	}
	return render(c, s, bulkResult{Hash: h.Name(), Count: len(entries)})
}

// parsePairs splits FIELD=VALUE arguments at the first '='.
func parsePairs(args []string) ([]rmap.Entry, error) {
	entries := make([]rmap.Entry, 0, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("put-all: %q is not FIELD=VALUE", arg)
		}
		entries = append(entries, rmap.Entry{Field: []byte(field), Value: []byte(value)})
	}
	return entries, nil
}
