package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/recordbin"
	"github.com/andreyvit/recordbin/deltalog"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <record>",
		Short: "Print the header and every field of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, l, data, err := g.record(cmd, args[0])
			if err != nil {
				return err
			}
			info := l.Debug(data)
			fmt.Fprint(cmd.OutOrStdout(), info)
			return info.Err
		},
	}
}

func newFieldsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fields <record>",
		Short: "List field names in header order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, l, data, err := g.record(cmd, args[0])
			if err != nil {
				return err
			}
			names, err := l.FieldNames(data)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newLocateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "locate <record> <field>",
		Short: "Print where a field's value is stored",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, l, data, err := g.record(cmd, args[0])
			if err != nil {
				return err
			}
			loc, ok, err := l.LocateField(data, g.class, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no field %q", args[1])
			}
			if loc.Null {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v null\n", loc.Name, loc.Type)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %v @%d+%d collate=%s\n", loc.Name, loc.Type, loc.Offset, loc.Length, loc.Collation)
			return nil
		},
	}
}

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <record> <field>",
		Short: "Decode a single field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, l, data, err := g.record(cmd, args[0])
			if err != nil {
				return err
			}
			v, t, ok, err := l.ReadField(data, g.class, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no field %q", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%v %s\n", t, recordbin.FormatValue(v))
			return nil
		},
	}
}

func newLogCmd(g *globalFlags) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "log <dir>",
		Short: "Print the committed entries of a delta log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.codec(cmd)
			if err != nil {
				return err
			}
			l, err := deltalog.Open(args[0], deltalog.Options{FileName: pattern, Context: cmd.Context()})
			if err != nil {
				return err
			}
			defer l.Close()
			dc := c.Delta()
			w := cmd.OutOrStdout()
			return l.Replay(func(e deltalog.Entry) error {
				v, err := e.Decode(dc)
				if err != nil {
					fmt.Fprintf(w, "%d %s %v ** ERROR: %v\n", e.ID, e.Timestamp.Format("2006-01-02T15:04:05Z"), e.Kind, err)
					return nil
				}
				switch v := v.(type) {
				case *recordbin.Delta:
					fmt.Fprintf(w, "%d %s %v %s, %d fields\n", e.ID, e.Timestamp.Format("2006-01-02T15:04:05Z"), e.Kind, v.Class, len(v.Fields))
					for _, fc := range v.Fields {
						fmt.Fprintf(w, "  %v %s\n", fc.Op, fc.Name)
					}
				case *recordbin.BagDelta:
					fmt.Fprintf(w, "%d %s %v mode=%v changes=%d\n", e.ID, e.Timestamp.Format("2006-01-02T15:04:05Z"), e.Kind, v.Mode, len(v.Changes))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "files", "*", "segment file name pattern")
	return cmd
}
