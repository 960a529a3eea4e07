package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"xdp-service/internal/repository"
)

// auditCmd は鍵開示の監査レコードを参照するコマンド。
func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect key release audit records",
	}
	cmd.AddCommand(auditListCmd())
	return cmd
}

func auditListCmd() *cobra.Command {
	var caller string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List key release records for a caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			db, err := openDB()
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			sid, err := sidOf(ctx, repository.NewDirectoryRepository(db), caller)
			if err != nil {
				return err
			}
			records, err := repository.NewAuditRepository(db).FindByCallerSID(ctx, sid, limit)
			if err != nil {
				return fmt.Errorf("listing audit records: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "CREATED AT\tOPERATION\tRESULT\tSERVER\tREASON")
			for _, r := range records {
				reason := r.Reason
				if reason == "" {
					reason = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.Operation, r.Result, r.DomainServer, reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", `Caller identity or SID, e.g. CORP\dave (required)`)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records")
	cmd.MarkFlagRequired("caller")
	return cmd
}
