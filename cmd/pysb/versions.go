package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/pysb/internal/config"
	"github.com/ZebulonRouseFrantzich/pysb/internal/service"
)

func (a *app) versionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "versions",
		Aliases: []string{"version", "v"},
		Short:   "List, install and remove Python runtimes",
	}
	cmd.AddCommand(a.versionsListCmd(), a.versionsInstallCmd(), a.versionsRemoveCmd())
	return cmd
}

func (a *app) versionsListCmd() *cobra.Command {
	var (
		available   bool
		arches      []string
		libcs       []string
		nonStripped bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed runtimes, or published ones with --available",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			if !available {
				return a.listInstalled(svc)
			}
			versions, err := svc.ListAvailable(cmd.Context(), service.AvailableRequest{
				Arches: arches,
				Libcs:  libcs,
				Full:   nonStripped,
			})
			if err != nil {
				return err
			}
			return a.render(availableListing(versions))
		},
	}

	cmd.Flags().BoolVarP(&available, "available", "a", false, "list versions published in the release catalog")
	cmd.Flags().StringSliceVar(&arches, "arch", nil, "architectures to list with --available (default: host)")
	cmd.Flags().StringSliceVar(&libcs, "libc", nil, "C libraries to list with --available (gnu, musl)")
	cmd.Flags().BoolVar(&nonStripped, "non-stripped", false, "list builds that keep debug symbols")
	return cmd
}

func (a *app) listInstalled(svc *service.Service) error {
	versions, err := svc.ListInstalled()
	if err != nil {
		return err
	}
	return a.render(installedListing(versions))
}

func installedListing(versions []service.InstalledVersion) listing {
	l := listing{
		value:  versions,
		header: []string{"VERSION", "PLATFORM", "VARIANT", "ENVIRONMENTS", "INSTALLED", "PATH"},
		empty:  "No Python versions installed. Run 'pysb versions list --available' to see what can be installed.",
	}
	for _, v := range versions {
		l.rows = append(l.rows, []string{
			v.Version.String(), v.Platform, v.Variant, joinOrDash(v.Environments), formatTime(v.InstalledAt), v.Root,
		})
	}
	return l
}

func availableListing(versions []service.AvailableVersion) listing {
	l := listing{
		value:  versions,
		header: []string{"VERSION", "PLATFORM", "VARIANT", "BUILD", "INSTALLED"},
		empty:  "No matching versions published.",
	}
	for _, v := range versions {
		l.rows = append(l.rows, []string{
			v.Version.String(), v.Platform, v.Variant, v.BuildDate, yesNo(v.Installed),
		})
	}
	return l
}

func (a *app) versionsInstallCmd() *cobra.Command {
	var (
		platformName string
		force        bool
		nonStripped  bool
	)

	cmd := &cobra.Command{
		Use:   "install <version>...",
		Short: "Download and install one or more runtimes",
		Long: `Download and install runtimes. Versions are exact MAJOR.MINOR.PATCH
releases; several versions are installed concurrently.`,
		Example: "  pysb versions install 3.12.2 3.11.9\n  pysb versions install 3.12.2 --platform linux-aarch64-musl",
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(func(s *config.Settings) {
				if nonStripped {
					s.FullBuilds = true
				}
			})
			if err != nil {
				return err
			}

			results := svc.InstallAll(cmd.Context(), args, service.InstallRequest{
				Platform: platformName,
				Replace:  force,
			})
			for _, r := range results {
				if r.Err != nil {
					if len(results) > 1 {
						fmt.Fprintf(a.stderr, "%s %s: %v\n", errorStyle.Render("failed"), r.Version, r.Err)
					}
					continue
				}
				fmt.Fprintf(a.stdout, "%s python %s (%s) in %s\n",
					successStyle.Render("installed"), r.Runtime.Version, r.Runtime.Platform, r.Runtime.Root)
			}
			return service.FirstError(results)
		},
	}

	cmd.Flags().StringVar(&platformName, "platform", "", "install for this platform instead of the host (e.g. linux-x86_64-musl)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace versions that are already installed")
	cmd.Flags().BoolVar(&nonStripped, "non-stripped", false, "install builds that keep debug symbols")
	return cmd
}

func (a *app) versionsRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "remove <version>",
		Aliases: []string{"rm", "uninstall"},
		Short:   "Remove an installed runtime",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			if err := svc.Remove(cmd.Context(), args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s python %s\n", successStyle.Render("removed"), args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove even if environments still use the version")
	return cmd
}
