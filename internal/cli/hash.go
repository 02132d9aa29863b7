package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vorpal/internal/app"
	"vorpal/internal/types"
)

type hashOptions struct {
	Source    string
	Ignore    []string
	Algorithm string
}

func newHashCommand() *cobra.Command {
	opts := hashOptions{}
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the source hash of a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHash(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Source, "source", ".", "Source directory")
	cmd.Flags().StringSliceVar(&opts.Ignore, "ignore", nil, "Relative paths to exclude")
	cmd.Flags().StringVar(&opts.Algorithm, "algorithm", "", "Fingerprint algorithm (sha256, blake3)")
	return cmd
}

func runHash(ctx context.Context, cmd *cobra.Command, opts hashOptions) error {
	service := newAppService()
	result, err := service.Hash(ctx, app.HashRequest{
		SourceDir: opts.Source,
		Ignore:    opts.Ignore,
		Algorithm: types.HashAlgorithm(resolveString(cmd, opts.Algorithm, "fingerprint.algorithm", "algorithm")),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Hash)
	return nil
}
