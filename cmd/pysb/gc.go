package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove files left behind by interrupted installs, removals and environment creation",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			removed, err := svc.CollectGarbage(cmd.Context())
			for _, path := range removed {
				fmt.Fprintf(a.stdout, "%s %s\n", successStyle.Render("removed"), path)
			}
			if err == nil && len(removed) == 0 {
				fmt.Fprintln(a.stdout, mutedStyle.Render("Nothing to clean up."))
			}
			return err
		},
	}
}
