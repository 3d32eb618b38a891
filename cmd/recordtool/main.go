// Command recordtool inspects encoded records and delta logs.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/recordbin"
	"github.com/andreyvit/recordbin/internal/mmapfile"
	"github.com/andreyvit/recordbin/schemafile"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	schema  string
	layout  string
	class   string
	verbose bool

	closers []io.Closer
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:   "recordtool",
		Short: "Inspect binary records and delta logs",
		Long: `recordtool decodes records in the pointer-table (0) and length-table (1)
layouts. Records are given as hex on the command line, as @file for raw
bytes, or as - to read hex from stdin.`,
		SilenceUsage: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return g.close()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.schema, "schema", "", "YAML schema file")
	pf.StringVar(&g.layout, "layout", "", "layout of a bare record: pointer or length (default: read the version byte)")
	pf.StringVar(&g.class, "class", "", "record class, for layouts that don't store it")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log decoding failures")

	root.AddCommand(
		newInspectCmd(&g),
		newFieldsCmd(&g),
		newLocateCmd(&g),
		newGetCmd(&g),
		newLogCmd(&g),
	)
	return root
}

func (g *globalFlags) close() error {
	var first error
	for _, c := range g.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	g.closers = nil
	return first
}

func (g *globalFlags) codec(cmd *cobra.Command) (*recordbin.Codec, error) {
	var o recordbin.Options
	if g.schema != "" {
		f, err := schemafile.Load(g.schema)
		if err != nil {
			return nil, err
		}
		o, err = f.CodecOptions()
		if err != nil {
			return nil, err
		}
	}
	level := slog.LevelError
	if g.verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return recordbin.NewCodec(o), nil
}

// record returns the layout and the layout-level bytes of the input.
func (g *globalFlags) record(cmd *cobra.Command, arg string) (*recordbin.Codec, recordbin.Layout, []byte, error) {
	c, err := g.codec(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	data, err := g.readInput(cmd, arg)
	if err != nil {
		return nil, nil, nil, err
	}
	if g.layout == "" {
		l, body, err := c.Envelope(data)
		return c, l, body, err
	}
	v, err := parseVersion(g.layout)
	if err != nil {
		return nil, nil, nil, err
	}
	l, err := c.Layout(v)
	return c, l, data, err
}

func parseVersion(s string) (recordbin.Version, error) {
	switch strings.ToLower(s) {
	case "0", "pointer":
		return recordbin.VersionPointer, nil
	case "1", "length":
		return recordbin.VersionLength, nil
	default:
		return 0, fmt.Errorf("unknown layout %q", s)
	}
}

var hexJunk = strings.NewReplacer(" ", "", "\t", "", "\n", "", "\r", "", "_", "", ":", "")

// readInput decodes a hex argument or maps an @file. Mapped files stay open
// until the command finishes.
func (g *globalFlags) readInput(cmd *cobra.Command, arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		m, err := mmapfile.Open(path, mmapfile.Random)
		if err != nil {
			return nil, err
		}
		g.closers = append(g.closers, m)
		return m.Bytes(), nil
	}
	if arg == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		arg = string(raw)
	}
	data, err := hex.DecodeString(hexJunk.Replace(arg))
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return data, nil
}
