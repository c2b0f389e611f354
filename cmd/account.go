package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/accounts"
	"github.com/example/court-scheduler/internal/internaltypes"
)

func newAccountCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage stored booking credentials (needs DATABASE_URL and CRED_ENC_KEY)",
	}
	cmd.AddCommand(newAccountSetCmd(g))
	cmd.AddCommand(newAccountShowCmd(g))
	cmd.AddCommand(newAccountListCmd(g))
	return cmd
}

func newAccountSetCmd(g *globalFlags) *cobra.Command {
	var a accounts.Account
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.Name == "" || a.Token == "" {
				return internaltypes.NewConfigError("name", "--name and --token are required")
			}
			ctx := cmd.Context()
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			d, repo, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := repo.Save(ctx, a); err != nil {
				return fmt.Errorf("save account %s: %w", a.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved account %s\n", a.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&a.Name, "name", "", "account name")
	cmd.Flags().StringVar(&a.Token, "token", "", "booking service token")
	cmd.Flags().StringVar(&a.OpenID, "open-id", "", "WeChat open id")
	cmd.Flags().StringVar(&a.SendKey, "send-key", "", "ServerChan send key")
	return cmd
}

func newAccountShowCmd(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an account with its secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			if name == "" {
				name = cfg.Account
			}
			if name == "" {
				return internaltypes.NewConfigError("name", "--name or --account is required")
			}
			d, repo, err := openStore(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer d.Close()
			a, err := repo.Get(ctx, name)
			if err != nil {
				return fmt.Errorf("account %s: %w", name, err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "name:     %s\n", a.Name)
			fmt.Fprintf(w, "token:    %s\n", accounts.Mask(a.Token))
			fmt.Fprintf(w, "open-id:  %s\n", accounts.Mask(a.OpenID))
			fmt.Fprintf(w, "send-key: %s\n", accounts.Mask(a.SendKey))
			fmt.Fprintf(w, "updated:  %s\n", humanize.Time(a.UpdatedAt))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "account name (default: --account)")
	return cmd
}

func newAccountListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored account names",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			d, repo, err := openStore(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer d.Close()
			names, err := repo.Names(ctx)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
