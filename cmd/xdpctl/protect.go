package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xdp-service/internal/domain"
	"xdp-service/internal/infra"
)

// observe は暗号化/復号の結果をメトリクスに記録する。
func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = domain.KindOf(err)
	}
	infra.ProtectOperations.WithLabelValues(operation, result).Inc()
}

// encryptCmd はデータの暗号化コマンド。
func encryptCmd() *cobra.Command {
	var input, output string
	var identities []string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a file for a set of identities",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() { observe("encrypt", err) }()
			ctx := context.Background()

			plaintext, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			caller, err := a.caller(ctx)
			if err != nil {
				return err
			}
			out, err := a.protect.Encrypt(ctx, caller, plaintext, identities)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, out, 0o600); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Encrypted %d bytes for %d identities\n", len(plaintext), len(identities))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "in", "i", "", "Input file (required)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (required)")
	cmd.Flags().StringArrayVarP(&identities, "user", "u", nil, `Identity allowed to decrypt, e.g. alice, CORP\dave or a SID (repeatable, required)`)
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	cmd.MarkFlagRequired("user")
	return cmd
}

// decryptCmd はデータの復号コマンド。
func decryptCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a file as the current identity",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() { observe("decrypt", err) }()
			ctx := context.Background()

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			caller, err := a.caller(ctx)
			if err != nil {
				return err
			}
			plaintext, err := a.protect.Decrypt(ctx, caller, data)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, plaintext, 0o600); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "in", "i", "", "Input file (required)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (required)")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}
