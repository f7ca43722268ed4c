package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stumpdev/stump-go/internal/api"
	"github.com/stumpdev/stump-go/internal/auth"
	"github.com/stumpdev/stump-go/internal/catalog"
	"github.com/stumpdev/stump-go/internal/config"
	"github.com/stumpdev/stump-go/internal/cron"
	"github.com/stumpdev/stump-go/internal/digest"
	"github.com/stumpdev/stump-go/internal/jobs"
	"github.com/stumpdev/stump-go/internal/progress"
	"github.com/stumpdev/stump-go/internal/scanner"
	"github.com/stumpdev/stump-go/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:   "stump",
		Short: "Indexes and serves comic and ebook archives over OPDS",
		Version: func() string {
			return version.Load().Version
		}(),
	}

	root.AddCommand(newServeCmd(), newScanCmd(), newMigrateCmd(), newSeedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (*catalog.SQLiteStore, error) {
	store, err := catalog.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return store, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the catalog schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Println("catalog schema applied at", cfg.DBPath())
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the bootstrap admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			user, err := store.CreateUser(cmd.Context(), username, hash, true)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Printf("created admin user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

func newScanCmd() *cobra.Command {
	var name string
	var concurrent bool
	cmd := &cobra.Command{
		Use:   "scan <library-path>",
		Short: "Run a one-shot scan of a library, registering it first if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libraryPath := args[0]
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.LibraryByPath(cmd.Context(), libraryPath); err == catalog.ErrNotFound {
				if name == "" {
					name = libraryPath
				}
				if _, err := store.CreateLibrary(cmd.Context(), name, libraryPath); err != nil {
					return fmt.Errorf("register library: %w", err)
				}
			} else if err != nil {
				return err
			}

			bus := progress.New()
			recon := scanner.NewReconciler(store, bus)
			recon.Digester = digest.New([]byte(cfg.JWTSecret), os.TempDir())
			var strategy scanner.Strategy = scanner.SerialStrategy{}
			if concurrent {
				strategy = scanner.NewConcurrentStrategy(cfg.ScanWorkers)
			}

			result, err := recon.Scan(cmd.Context(), libraryPath, uuid.NewString(), strategy)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			fmt.Printf("series created: %d, media created: %d, total files: %d, errors: %d\n",
				result.SeriesCreated, result.MediaCreated, result.TotalFiles, len(result.Errors))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "library name (defaults to the path)")
	cmd.Flags().BoolVar(&concurrent, "concurrent", false, "use the bounded concurrent scan strategy")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/OPDS server, job worker, and cron scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			bus := progress.New()
			queue := jobs.NewQueue(cfg.RedisAddr)
			issuer := auth.NewIssuer(cfg.JWTSecret)

			recon := scanner.NewReconciler(store, bus)
			recon.ProbeTimeout = time.Duration(cfg.ProbeTimeoutSecs) * time.Second
			recon.Digester = digest.New([]byte(cfg.JWTSecret), os.TempDir())
			strategy := scanner.NewConcurrentStrategy(cfg.ScanWorkers)

			handler := jobs.NewScanHandler(recon, strategy)
			queue.RegisterHandler(jobs.TaskScanLibrary, handler)

			go func() {
				if err := queue.Start(cmd.Context()); err != nil {
					logrus.WithError(err).Error("job worker stopped")
				}
			}()
			defer queue.Stop()

			scheduler := cron.New(func(libraryPath string) {
				if _, err := jobs.EnqueueScan(queue, libraryPath); err != nil {
					logrus.WithError(err).WithField("library_path", libraryPath).Warn("scheduled scan enqueue failed")
				}
			})
			libs, err := store.ListLibraries(cmd.Context())
			if err != nil {
				return fmt.Errorf("list libraries: %w", err)
			}
			for _, lib := range libs {
				scheduler.Register(cron.LibrarySchedule{LibraryPath: lib.Path, Expression: "0 3 * * *"})
			}
			scheduler.Start()
			defer scheduler.Stop()

			srv := api.NewServer(store, bus, queue, issuer)
			addr := fmt.Sprintf(":%d", cfg.Port)
			logrus.WithField("addr", addr).Info("stump server starting")
			return http.ListenAndServe(addr, srv.Handler())
		},
	}
}
