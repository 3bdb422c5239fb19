package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/pysb/internal/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}
	cmd.AddCommand(a.configShowCmd(), a.configSetCmd())
	return cmd
}

func (a *app) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show every configuration key and its effective value",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			if a.output == outputTable {
				fmt.Fprintln(a.stdout, mutedStyle.Render("# "+store.Path()))
			}
			return a.render(configListing(store.Entries()))
		},
	}
}

func configListing(entries []config.Entry) listing {
	l := listing{
		value:  entries,
		header: []string{"SECTION", "KEY", "VALUE", "SOURCE"},
	}
	for _, e := range entries {
		source := "file"
		if e.Default {
			source = "default"
		}
		l.rows = append(l.rows, []string{e.Section, e.Key, e.Value, source})
	}
	return l
}

func (a *app) configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <section> <key> [value]",
		Short: "Set a configuration key; omitting the value restores its default",
		Example: `  pysb config set install on_existing replace
  pysb config set paths versions /srv/python
  pysb config set paths versions`,
		Args: usageArgs(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}

			section, key, value := args[0], args[1], ""
			if len(args) == 3 {
				value = args[2]
			}
			if err := store.Set(section, key, value); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}

			if value == "" {
				effective, _ := store.Get(section, key)
				fmt.Fprintf(a.stdout, "%s.%s reset to default %q\n", section, key, effective)
				return nil
			}
			fmt.Fprintf(a.stdout, "%s.%s = %q\n", section, key, value)
			return nil
		},
	}
}
