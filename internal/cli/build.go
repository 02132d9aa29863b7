package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vorpal/internal/app"
	"vorpal/internal/types"
)

type buildOptions struct {
	Graph       string
	Targets     []string
	Jobs        int
	Endpoint    string
	PackageRoot string
	PrivateKey  string
	AgeIdentity string
	Algorithm   string
	Lockfile    string
}

func newBuildCommand() *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build packages from a graph file on the remote executor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Graph, "graph", "", "Package graph file")
	cmd.Flags().StringSliceVar(&opts.Targets, "target", nil, "Packages to build with their dependencies (default: all)")
	cmd.Flags().IntVar(&opts.Jobs, "jobs", 1, "Independent packages to build concurrently")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "Build executor address")
	cmd.Flags().StringVar(&opts.PackageRoot, "package-root", "", "Local package store directory")
	cmd.Flags().StringVar(&opts.PrivateKey, "private-key", "", "Signing key (PEM, optionally age-encrypted)")
	cmd.Flags().StringVar(&opts.AgeIdentity, "age-identity", "", "age identity file for an encrypted signing key")
	cmd.Flags().StringVar(&opts.Algorithm, "algorithm", "", "Fingerprint algorithm (sha256, blake3)")
	cmd.Flags().StringVar(&opts.Lockfile, "lockfile", "", "Write the built outputs to this lockfile")
	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, opts buildOptions) error {
	service := newAppService()
	result, err := service.Build(ctx, app.BuildRequest{
		GraphPath:   resolveString(cmd, opts.Graph, "graph", "graph"),
		Targets:     resolveStrings(cmd, opts.Targets, "targets", "target"),
		Jobs:        resolveInt(cmd, opts.Jobs, "jobs", "jobs"),
		Endpoint:    resolveString(cmd, opts.Endpoint, "endpoint", "endpoint"),
		PackageRoot: resolveString(cmd, opts.PackageRoot, "package_root", "package-root"),
		PrivateKey:  resolveString(cmd, opts.PrivateKey, "keys.private", "private-key"),
		AgeIdentity: resolveString(cmd, opts.AgeIdentity, "keys.age_identity", "age-identity"),
		Algorithm:   types.HashAlgorithm(resolveString(cmd, opts.Algorithm, "fingerprint.algorithm", "algorithm")),
		Lockfile:    resolveString(cmd, opts.Lockfile, "lockfile", "lockfile"),
	})
	if err != nil {
		return err
	}
	for _, record := range result.Records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", record.Name, record.Output.Key())
	}
	return nil
}
