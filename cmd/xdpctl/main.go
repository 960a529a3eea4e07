// Package main はCLIツールのエントリポイント。
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"xdp-service/config"
	"xdp-service/internal/domain"
	"xdp-service/internal/infra"
)

const version = "1.0.0"

var (
	cfg      *config.Config
	callerAs string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "xdpctl",
		Short:         "XDP data protection CLI",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .envファイルを読み込む（存在しない場合は無視）
			_ = godotenv.Load()
			cfg = config.Load()
			if logLevel == "" {
				logLevel = cfg.LogLevel
			}
			if callerAs == "" {
				callerAs = os.Getenv("XDP_USER")
			}
			// 標準出力は暗号文の出力先になりうるため、ログは標準エラーに出す
			slog.SetDefault(infra.NewLogger(os.Stderr, cfg, infra.ParseLevel(logLevel)))
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&callerAs, "as", "", `Identity to act as, e.g. CORP\dave (or set XDP_USER; defaults to the OS user)`)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (or set LOG_LEVEL)")

	// サブコマンド登録
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(decryptCmd())
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", domain.KindOf(err), err)
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xdpctl version %s\n", version)
		},
	}
}
