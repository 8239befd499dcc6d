package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/taskpulse/internal/app"
	"github.com/and161185/taskpulse/internal/convert"
	"github.com/and161185/taskpulse/internal/migrate"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/service"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}, &cobra.Command{
		Use:   "status",
		Short: "Print applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			return migrate.Status(ctx, cfg.Database.DSN)
		},
	})
	return cmd
}

func tokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect API session tokens",
	}

	var (
		user string
		save bool
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			uid, err := convert.ParseID(user)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			sessions := service.NewSessionService([]byte(cfg.Auth.JWTKey), cfg.Auth.AccessTTL)
			tok, err := sessions.Issue(uid)
			if err != nil {
				return err
			}
			tf := tokenFile{AccessToken: tok.AccessToken, UserID: uid.String(), ExpiresAt: tok.ExpiresAt}
			if save {
				if err := saveToken(tf); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
			}
			return printJSON(cmd.OutOrStdout(), tf)
		},
	}
	issue.Flags().StringVar(&user, "user", "", "user id (uuid)")
	issue.Flags().BoolVar(&save, "save", false, "store the token under the user config dir")
	_ = issue.MarkFlagRequired("user")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tf, err := loadToken()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tf)
		},
	}

	cmd.AddCommand(issue, show)
	return cmd
}

// userFlag falls back to the saved token's user when --user is omitted.
func userFlag(v string) (uuid.UUID, error) {
	if v == "" {
		tf, err := loadToken()
		if err != nil {
			return uuid.Nil, errors.New("--user is required (or save a token first)")
		}
		v = tf.UserID
	}
	return convert.ParseID(v)
}

func credentialCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credential",
		Aliases: []string{"source"},
		Short:   "Manage connected sources",
	}

	var (
		user, typ, token, refresh string
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Store an encrypted vendor credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := userFlag(user)
			if err != nil {
				return err
			}
			st := model.SourceType(typ)
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Credentials.Put(ctx, uid, st, model.Secret{AccessToken: token, RefreshToken: refresh})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{"source_id": id.String()})
			})
		},
	}
	put.Flags().StringVar(&user, "user", "", "user id (defaults to the saved token's user)")
	put.Flags().StringVar(&typ, "type", string(model.SourceNotion), "source type: notion or google_calendar")
	put.Flags().StringVar(&token, "token", "", "access token or integration secret")
	put.Flags().StringVar(&refresh, "refresh-token", "", "OAuth refresh token")
	_ = put.MarkFlagRequired("token")

	list := &cobra.Command{
		Use:   "list",
		Short: "List connected sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := userFlag(user)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				cs, err := a.Credentials.List(ctx, uid)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), convert.ToSources(cs))
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "user id (defaults to the saved token's user)")

	cmd.AddCommand(put, list)
	return cmd
}

func tableCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Select tables and configure property mappings",
	}

	var user, sourceID, name, file string
	sel := &cobra.Command{
		Use:   "select TABLE_ID",
		Short: "Select a vendor table for syncing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := userFlag(user)
			if err != nil {
				return err
			}
			sid, err := convert.ParseID(sourceID)
			if err != nil {
				return fmt.Errorf("--source: %w", err)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				d, err := a.Descriptors.Select(ctx, uid, sid, args[0], name)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), convert.ToTable(*d))
			})
		},
	}
	sel.Flags().StringVar(&user, "user", "", "user id (defaults to the saved token's user)")
	sel.Flags().StringVar(&sourceID, "source", "", "source id returned by credential put")
	sel.Flags().StringVar(&name, "name", "", "display name")
	_ = sel.MarkFlagRequired("source")

	mapCmd := &cobra.Command{
		Use:   "map TABLE_ID",
		Short: "Set the property mapping from a JSON file ('-' reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := userFlag(user)
			if err != nil {
				return err
			}
			raw, err := readAll(file)
			if err != nil {
				return err
			}
			var m model.PropertyMapping
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("decode mapping: %w", err)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Descriptors.SetMapping(ctx, uid, args[0], m); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "mapping saved")
				return nil
			})
		},
	}
	mapCmd.Flags().StringVar(&user, "user", "", "user id (defaults to the saved token's user)")
	mapCmd.Flags().StringVar(&file, "file", "-", "mapping JSON file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List known tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := userFlag(user)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				ds, err := a.Descriptors.List(ctx, uid)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), convert.ToTables(ds))
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "user id (defaults to the saved token's user)")

	cmd.AddCommand(sel, mapCmd, list)
	return cmd
}

func syncCmd(opts *rootOptions) *cobra.Command {
	var user, sourceID, mode string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync for one source and print the per-table outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := userFlag(user)
			if err != nil {
				return err
			}
			sid, err := convert.ParseID(sourceID)
			if err != nil {
				return fmt.Errorf("--source: %w", err)
			}
			m, ok := model.ParseSyncMode(mode)
			if !ok {
				return fmt.Errorf("--mode must be backfill or incremental, got %q", mode)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Sync.TriggerSync(ctx, uid, sid, m)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), convert.ToSyncResult(res))
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to the saved token's user)")
	cmd.Flags().StringVar(&sourceID, "source", "", "source id")
	cmd.Flags().StringVar(&mode, "mode", string(model.SyncIncremental), "backfill or incremental")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func kpiCmd(opts *rootOptions) *cobra.Command {
	var user, week, table string
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Compute and store the weekly KPI snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := userFlag(user)
			if err != nil {
				return err
			}
			ref, err := convert.ParseWeek(week)
			if err != nil {
				return fmt.Errorf("--week: %w", err)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				s, err := a.KPIs.GetWeeklyKPIs(ctx, uid, ref, table)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), convert.ToWeeklySnapshot(*s))
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to the saved token's user)")
	cmd.Flags().StringVar(&week, "week", "", "any instant within the week (RFC3339 or YYYY-MM-DD); defaults to now")
	cmd.Flags().StringVar(&table, "table", "", "restrict to one table id")
	return cmd
}
