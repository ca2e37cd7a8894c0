// root.go — корневая команда и служебные CLI-команды.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bigkaa/filedrop/internal/api/middleware"
	"github.com/bigkaa/filedrop/internal/config"
	"github.com/bigkaa/filedrop/internal/database"
	"github.com/bigkaa/filedrop/internal/service"
)

// rootOptions — общие флаги команд.
type rootOptions struct {
	envFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "filedrop",
		Short:         "Временное хранение файлов по короткой ссылке",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadEnvFile(opts.envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "",
		"путь к .env-файлу (по умолчанию FD_ENV_FILE или ./.env)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSweepCommand())
	rootCmd.AddCommand(newReconcileCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// withApp загружает конфигурацию, собирает приложение и вызывает fn.
// Логи CLI-команд пишутся в stderr.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.SetupLoggerTo(cfg, cmd.ErrOrStderr())

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Удалить файлы с истёкшим сроком хранения",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, skipped, err := a.sweeper.RunOnce(ctx)
				if err != nil {
					return err
				}
				if skipped {
					return service.ErrSweepInProgress
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Граница: %s\n", res.Cutoff.Format(time.RFC3339))
				fmt.Fprintf(out, "Кандидатов: %d\n", res.Candidates)
				fmt.Fprintf(out, "Удалено записей: %d\n", res.RowsRemoved)
				fmt.Fprintf(out, "Удалено файлов: %d\n", res.BlobsRemoved)
				if res.RowFailures > 0 || len(res.BlobFailures) > 0 {
					fmt.Fprintf(out, "Ошибок: записи %d, файлы %d\n", res.RowFailures, len(res.BlobFailures))
				}
				return nil
			})
		},
	}
}

func newReconcileCommand() *cobra.Command {
	var removeOrphans bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить директорию хранения с каталогом",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, skipped, err := a.reconciler.RunOnce(ctx, removeOrphans)
				if err != nil {
					return err
				}
				if skipped {
					return service.ErrReconcileInProgress
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Файлов: %d, записей: %d\n", res.BlobsChecked, res.RecordsChecked)
				for _, name := range res.OrphanBlobs {
					fmt.Fprintf(out, "сирота: %s\n", name)
				}
				for _, id := range res.MissingBlobs {
					fmt.Fprintf(out, "нет файла: %s\n", id)
				}
				if removeOrphans {
					fmt.Fprintf(out, "Удалено сирот: %d\n", res.OrphansRemoved)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&removeOrphans, "remove-orphans", false,
		"удалить файлы без записи старше FD_ORPHAN_GRACE")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список хранимых файлов (новые первыми)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				records, err := a.svc.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tИМЯ\tРАЗМЕР\tЗАГРУЖЕН\tИСТЕКАЕТ")
				for _, rec := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						rec.Identifier,
						rec.OriginalName,
						humanize.IBytes(uint64(rec.Size)),
						rec.CreatedAt.Format(time.RFC3339),
						humanize.Time(rec.CreatedAt.Add(a.cfg.Retention)),
					)
				}
				return tw.Flush()
			})
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <identifier>...",
		Short: "Удалить файлы по идентификатору",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var errs []error
				for _, id := range args {
					if err := a.svc.Delete(ctx, id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "удалён: %s\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции каталога",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.SetupLoggerTo(cfg, cmd.ErrOrStderr())
			return database.Migrate(cfg, logger)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Выпустить bearer-токен для загрузки или администрирования",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("FD_UPLOAD_SECRET")
			}
			if secret == "" {
				return errors.New("секрет не задан: укажите --secret или FD_UPLOAD_SECRET")
			}
			for _, s := range scopes {
				if s != middleware.ScopeWrite && s != middleware.ScopeAdmin {
					return fmt.Errorf("неизвестный scope %q", s)
				}
			}
			token, err := middleware.IssueToken(secret, subject, scopes, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "секрет подписи (по умолчанию FD_UPLOAD_SECRET)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "sub токена")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{middleware.ScopeWrite},
		"scopes токена: "+middleware.ScopeWrite+", "+middleware.ScopeAdmin)
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "срок действия токена")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "filedrop %s\n", config.Version)
		},
	}
}
