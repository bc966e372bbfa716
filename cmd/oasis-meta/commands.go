package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Xunop/e-oasis-meta/internal/library"
	"github.com/Xunop/e-oasis-meta/internal/meta"
)

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return nil, errors.Errorf("invalid book id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func fieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List the fields of the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(func(ctx context.Context, l *library.Library) error {
				fields, err := l.Fields(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tDATATYPE\tKIND\tTABLE")
				for _, f := range fields {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Name, f.Datatype, f.Kind, f.Table)
				}
				return w.Flush()
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the metadata of a book as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withLibrary(func(ctx context.Context, l *library.Library) error {
				b, err := l.GetMetadata(ctx, ids[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(b)
			})
		},
	}
}

func setCmd() *cobra.Command {
	var caseChange bool
	cmd := &cobra.Command{
		Use:   "set <id> <field> <value>",
		Short: "Write one field of a book",
		Long:  "Write one field of a book. An empty value clears the field.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			return withLibrary(func(ctx context.Context, l *library.Library) error {
				dirtied, err := l.SetField(ctx, args[1], map[int]any{ids[0]: args[2]}, caseChange)
				if err != nil {
					return err
				}
				if len(dirtied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No change")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Changed books: %v\n", dirtied.Sorted())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&caseChange, "case-change", false, "rename existing values that only differ in case")
	return cmd
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <title> [author...]",
		Short: "Create a book",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(func(ctx context.Context, l *library.Library) error {
				id, err := l.AddBook(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added book %d\n", id)
				return nil
			})
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete books",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withLibrary(func(ctx context.Context, l *library.Library) error {
				removed, err := l.RemoveBooks(ctx, ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed books: %v\n", removed)
				return nil
			})
		},
	}
}

func dirtiedCmd() *cobra.Command {
	var clearAfter bool
	cmd := &cobra.Command{
		Use:   "dirtied",
		Short: "List books whose metadata changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(func(ctx context.Context, l *library.Library) error {
				ids, err := l.DirtiedBooks(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ids)
				if clearAfter {
					return l.ClearDirtied(ctx, ids)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clearAfter, "clear", false, "forget the listed books afterwards")
	return cmd
}

func createColumnCmd() *cobra.Command {
	var (
		multiple bool
		enum     string
		names    bool
	)
	cmd := &cobra.Command{
		Use:   "create-column <label> <name> <datatype>",
		Short: "Add a custom column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			display := meta.Display{IsNames: names}
			if enum != "" {
				for _, v := range strings.Split(enum, ",") {
					display.EnumValues = append(display.EnumValues, strings.TrimSpace(v))
				}
			}
			return withLibrary(func(ctx context.Context, l *library.Library) error {
				f, err := l.CreateCustomColumn(ctx, args[0], args[1], meta.Datatype(args[2]), multiple, display)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created field %s\n", f.Name)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&multiple, "multiple", false, "hold a list of values (text only)")
	cmd.Flags().StringVar(&enum, "enum", "", "comma separated values of an enumeration")
	cmd.Flags().BoolVar(&names, "names", false, "values are person names joined with &")
	return cmd
}
