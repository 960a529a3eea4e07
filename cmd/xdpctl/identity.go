package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"xdp-service/internal/domain"
	"xdp-service/internal/identity"
	"xdp-service/internal/repository"
)

// identityCmd は ID ディレクトリの管理コマンド。
func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the identity directory",
	}
	cmd.AddCommand(identityAddCmd())
	cmd.AddCommand(identityAddMemberCmd())
	cmd.AddCommand(identityListCmd())
	return cmd
}

func withDirectory(fn func(ctx context.Context, dir *repository.DirectoryRepository) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return fn(context.Background(), repository.NewDirectoryRepository(db))
}

// sidOf は ID 表記を SID に解決する。SID 表記はそのまま返す。
func sidOf(ctx context.Context, dir *repository.DirectoryRepository, id string) (string, error) {
	p, err := identity.ParseContext(id, cfg.MachineName)
	if err != nil {
		return "", err
	}
	if p.SID != "" {
		return p.SID, nil
	}
	if cfg.DomainName != "" && identity.DomainsEqual(p.Context, cfg.DomainName) {
		p.Context = cfg.DomainName
	}
	entries, err := dir.LookupName(ctx, p.Context, p.Name)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 {
		return "", fmt.Errorf("%w: '%s' matched %d principals", domain.ErrInvalidIdentity, id, len(entries))
	}
	return entries[0].SID, nil
}

func identityAddCmd() *cobra.Command {
	var contextName, name, sid string
	var group bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user or group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !identity.IsSID(sid) {
				return fmt.Errorf("%w: '%s' is not a SID", domain.ErrInvalidIdentity, sid)
			}
			if contextName == "" {
				contextName = cfg.MachineName
			}
			entry := &domain.DirectoryEntry{SID: sid, Context: contextName, Name: name, Type: domain.IdentityTypeUser}
			if group {
				entry.Type = domain.IdentityTypeGroup
			}
			return withDirectory(func(ctx context.Context, dir *repository.DirectoryRepository) error {
				if err := dir.CreatePrincipal(ctx, entry); err != nil {
					return fmt.Errorf("registering %s\\%s: %w", contextName, name, err)
				}
				fmt.Printf("Registered %s %s\\%s (%s)\n", entry.Type, entry.Context, entry.Name, entry.SID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contextName, "context", "", "Machine or domain name (defaults to XDP_MACHINE_NAME)")
	cmd.Flags().StringVar(&name, "name", "", "Account name (required)")
	cmd.Flags().StringVar(&sid, "sid", "", "Security identifier (required)")
	cmd.Flags().BoolVar(&group, "group", false, "Register a group instead of a user")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("sid")
	return cmd
}

func identityAddMemberCmd() *cobra.Command {
	var group, member string
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Add a user or group to a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(func(ctx context.Context, dir *repository.DirectoryRepository) error {
				groupSID, err := sidOf(ctx, dir, group)
				if err != nil {
					return err
				}
				memberSID, err := sidOf(ctx, dir, member)
				if err != nil {
					return err
				}
				if err := dir.AddMember(ctx, groupSID, memberSID); err != nil {
					return fmt.Errorf("adding %s to %s: %w", member, group, err)
				}
				fmt.Printf("Added %s to %s\n", member, group)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Group identity or SID (required)")
	cmd.Flags().StringVar(&member, "member", "", "Member identity or SID (required)")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("member")
	return cmd
}

func identityListCmd() *cobra.Command {
	var contextName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(func(ctx context.Context, dir *repository.DirectoryRepository) error {
				entries, err := dir.List(ctx, contextName)
				if err != nil {
					return fmt.Errorf("listing identities: %w", err)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "IDENTITY\tTYPE\tSID\tCREATED AT")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\\%s\t%s\t%s\t%s\n", e.Context, e.Name, e.Type, e.SID, e.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&contextName, "context", "", "Only list identities in this machine or domain")
	return cmd
}
