package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vorpal/internal/app"
)

type pruneOptions struct {
	PackageRoot  string
	KeepLast     int
	KeepDays     int
	ProtectKeys  []string
	ProtectNames []string
	Lockfiles    []string
	DryRun       bool
}

func newPruneCommand() *cobra.Command {
	opts := pruneOptions{}
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove local store entries outside the retention policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.PackageRoot, "package-root", "", "Local package store directory")
	cmd.Flags().IntVar(&opts.KeepLast, "keep-last", 1, "Keep the newest N entries per package name")
	cmd.Flags().IntVar(&opts.KeepDays, "keep-days", 0, "Keep entries newer than N days")
	cmd.Flags().StringSliceVar(&opts.ProtectKeys, "protect-key", nil, "Never prune these <name>-<hash> entries")
	cmd.Flags().StringSliceVar(&opts.ProtectNames, "protect-name", nil, "Never prune entries of these packages")
	cmd.Flags().StringSliceVar(&opts.Lockfiles, "lockfile", nil, "Never prune outputs pinned by these lockfiles")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", true, "Only report prune actions without deleting")
	return cmd
}

func runPrune(ctx context.Context, cmd *cobra.Command, opts pruneOptions) error {
	service := newAppService()
	result, err := service.PruneStore(ctx, app.PruneRequest{
		PackageRoot:  resolveString(cmd, opts.PackageRoot, "package_root", "package-root"),
		KeepLast:     resolveInt(cmd, opts.KeepLast, "prune.keep_last", "keep-last"),
		KeepDays:     resolveInt(cmd, opts.KeepDays, "prune.keep_days", "keep-days"),
		ProtectKeys:  opts.ProtectKeys,
		ProtectNames: resolveStrings(cmd, opts.ProtectNames, "prune.protect_names", "protect-name"),
		Lockfiles:    resolveStrings(cmd, opts.Lockfiles, "prune.lockfiles", "lockfile"),
		DryRun:       resolveBool(cmd, opts.DryRun, "prune.dry_run", "dry-run"),
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if result.DryRun {
		for _, path := range result.Deleted {
			fmt.Fprintf(out, "would delete %s\n", path)
		}
		fmt.Fprintf(out, "dry-run: keep=%d delete=%d\n", result.KeepCount, result.DeleteCount)
		return nil
	}
	fmt.Fprintf(out, "pruned store entries: %d\n", result.DeleteCount)
	return nil
}
