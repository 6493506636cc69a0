package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	pgStorage "settlement-reconciler/internal/adapter/storage/postgres"
	"settlement-reconciler/internal/rulebook"
	"settlement-reconciler/internal/service"
	"settlement-reconciler/pkg/refcode"

	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
			if err != nil {
				return fmt.Errorf("connect postgresql: %w", err)
			}
			defer pool.Close()

			if err := pgStorage.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info().Msg("schema applied")
			return nil
		},
	}
}

func railsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rails",
		Short: "List configured rails",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RAIL\tTYPE\tRULEBOOK\tCUTOFF\tFALLBACK\tQPM")
			for _, name := range cfg.RailNames() {
				rc := cfg.Rails[name]
				cutoff := "?"
				if rb, err := rulebook.Resolve(rc.RulebookName(name)); err == nil {
					cutoff = rb.Cutoff + " " + rb.Timezone
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\n",
					name, rc.Type, rc.RulebookName(name), cutoff, rc.Fallback(), rc.MaxQueriesPerMinute)
			}
			return w.Flush()
		},
	}
}

func tokenCmd(configPath *string) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator JWT for the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not configured")
			}

			tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
			token, expiry, err := tokenSvc.Generate(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiry.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "operator name")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func encodeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "encode <instruction-id> [note]",
		Short: "Print the remark a rail carries for an instruction",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid instruction id %q", args[0])
			}
			note := ""
			if len(args) == 2 {
				note = args[1]
			}
			remark, err := refcode.Encode(id, note, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), remark)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", refcode.DefaultLimit, "rail remark length limit")
	return cmd
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <remark>",
		Short: "Print the instruction id carried by a rail remark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := refcode.Decode(args[0])
			if !ok {
				return fmt.Errorf("remark %q does not carry an instruction id", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
