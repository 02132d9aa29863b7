package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vorpal/internal/app"
)

type keysOptions struct {
	Dir       string
	EncryptTo []string
}

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the source signing keys",
	}
	cmd.AddCommand(newKeysGenerateCommand())
	return cmd
}

func newKeysGenerateCommand() *cobra.Command {
	opts := keysOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a new RSA signing keypair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeysGenerate(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "Directory for private.pem and public.pem (default: configured key paths)")
	cmd.Flags().StringSliceVar(&opts.EncryptTo, "encrypt-to", nil, "age recipients to encrypt the private key to")
	return cmd
}

func runKeysGenerate(ctx context.Context, cmd *cobra.Command, opts keysOptions) error {
	privatePath := resolveString(cmd, "", "keys.private", "")
	publicPath := resolveString(cmd, "", "keys.public", "")
	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		privatePath = filepath.Join(dir, "private.pem")
		publicPath = filepath.Join(dir, "public.pem")
	}
	service := newAppService()
	result, err := service.GenerateKeys(ctx, app.KeysGenerateRequest{
		PrivatePath: privatePath,
		PublicPath:  publicPath,
		Recipients:  opts.EncryptTo,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key: %s\n", result.PrivatePath, result.PublicPath)
	return nil
}
