package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fyrsmithlabs/plains/internal/tasks"
	"github.com/spf13/cobra"
)

func newTasksCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks and their hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, cleanup, err := openPipeline(cmd, f)
			if err != nil {
				return err
			}
			defer cleanup()

			d := p.Describe()
			if f.json {
				return writeJSON(cmd.OutOrStdout(), d)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s -> %s (%s)", d.Source, d.Destination, d.Mode)))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tHOOK\tENTRIES\tPHASES")
			for _, t := range d.Tasks {
				phases := make([]string, 0, len(t.Phases))
				for _, ph := range t.Phases {
					phases = append(phases, string(ph))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.Name, t.Kind, t.Hook, dash(strings.Join(t.Entries, " ")), strings.Join(phases, ","))
			}
			return w.Flush()
		},
	}
}

func newEntriesCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "entries",
		Short: "Resolve every task's entries and print the stacks",
		Long: `Run the pre_publish barrier of every task and print the resulting
stacks without publishing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, p, cleanup, err := openPipeline(cmd, f)
			if err != nil {
				return err
			}
			defer cleanup()

			stacks, err := p.Prepare(ctx)
			if err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), renderFailure(err))
				return errReported
			}

			if f.json {
				return writeJSON(cmd.OutOrStdout(), stacks)
			}

			names := make([]string, 0, len(stacks))
			for name := range stacks {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s (%d)", name, len(stacks[name]))))
				for _, e := range stacks[name] {
					fmt.Fprintf(out, "  %s\n", e.Relative)
				}
			}
			return nil
		},
	}
}

func newKindsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the built-in task kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := tasks.Kinds()
			if f.json {
				type kind struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				}
				out := make([]kind, 0, len(kinds))
				for _, k := range kinds {
					out = append(out, kind{Name: k.Name, Description: k.Description})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, k := range kinds {
				fmt.Fprintf(w, "%s\t%s\n", k.Name, k.Description)
			}
			return w.Flush()
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
