// Package main is the entrypoint for the skiff backup CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skiffhq/skiff/internal/agecrypt"
	"github.com/skiffhq/skiff/internal/audit"
	"github.com/skiffhq/skiff/internal/backup"
	"github.com/skiffhq/skiff/internal/config"
	"github.com/skiffhq/skiff/internal/objectstore"
	"github.com/skiffhq/skiff/internal/restore"
	"github.com/skiffhq/skiff/internal/secrets"
	"github.com/skiffhq/skiff/internal/workload"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// A signal cancels the context instead of killing the process, so
	// in-flight runs abort through their error paths and scoped cleanup
	// (scratch directories, key files) still executes.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skiff",
		Short: "Skiff backup - keeps your agent deployment recoverable",
		Long: `Skiff backs up an agent deployment's state to remote object storage
and restores it onto a fresh host.

Run 'skiff init' to create a configuration, 'skiff keygen' to set up
archive encryption, then 'skiff backup' any time or 'skiff schedule'
as a daemon.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newConfigCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newScheduleCmd(),
		newSecretsCmd(),
		newKeygenCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Skiff %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if _, statErr := os.Stat(path); statErr == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.Defaults()
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			fmt.Println("Edit it to select your secret and object store backends,")
			fmt.Println("then run 'skiff keygen' to enable archive encryption.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			path, _ := config.DefaultConfigPath()
			fmt.Printf("Config file: %s\n", path)
			fmt.Println()
			fmt.Printf("Prefix:         %s\n", cfg.Prefix)
			fmt.Printf("Retention:      %d days\n", cfg.RetentionDays)
			fmt.Printf("Data dir:       %s\n", cfg.DataDir)
			fmt.Printf("Secrets:        %s\n", cfg.Secrets.Backend)
			fmt.Printf("Object store:   %s\n", cfg.ObjectStore.Backend)
			fmt.Printf("Workload:       %s\n", cfg.Workload.Type)
			fmt.Printf("Schedule:       %s\n", cfg.Schedule)
			return nil
		},
	}
}

// deps bundles the wired backends for one command invocation.
type deps struct {
	cfg     *config.Config
	store   secrets.Store
	objects objectstore.Backend
	source  workload.Source
	journal *audit.Journal
	logger  zerolog.Logger
}

func buildDeps(ctx context.Context, overrides ...func(*config.Config)) (*deps, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	store, err := secrets.New(ctx, cfg.Secrets, cfg.Prefix, logger)
	if err != nil {
		return nil, fmt.Errorf("create secret store: %w", err)
	}
	objects, err := objectstore.New(ctx, cfg.ObjectStore, logger)
	if err != nil {
		return nil, fmt.Errorf("create object store: %w", err)
	}
	source, err := workload.New(cfg.Workload, logger)
	if err != nil {
		objects.Close()
		return nil, err
	}
	journal, err := audit.Open(cfg.AuditDBPath, logger)
	if err != nil {
		objects.Close()
		return nil, err
	}

	return &deps{
		cfg:     cfg,
		store:   store,
		objects: objects,
		source:  source,
		journal: journal,
		logger:  logger,
	}, nil
}

func (d *deps) Close() {
	if err := d.journal.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("close audit journal")
	}
	if err := d.objects.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("close object store")
	}
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Run a backup now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			return runBackup(ctx, d)
		},
	}
}

func runBackup(ctx context.Context, d *deps) error {
	fmt.Println("Starting backup...")
	result, err := backup.NewOrchestrator(d.cfg, d.store, d.objects, d.source, d.journal, d.logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Println("Backup completed successfully!")
	fmt.Printf("  Archive:   %s\n", result.ArchiveName)
	fmt.Printf("  Encrypted: %v\n", result.Encrypted)
	if result.Sweep != nil {
		fmt.Printf("  Retention: %d deleted, %d retained, %d skipped\n",
			len(result.Sweep.Deleted), len(result.Sweep.Retained), len(result.Sweep.Skipped))
	}
	for _, w := range result.Warnings {
		fmt.Printf("  WARNING: %s\n", w)
	}
	return nil
}

func newRestoreCmd() *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "restore [backup-name]",
		Short: "Restore from a backup archive",
		Long: `Restore the deployment from a remote backup archive.

With no argument the most recent backup is restored. Encrypted
archives require the private key in the secret store; run
'skiff keygen' output through your secret backend if it is missing.

Use --bucket to restore from a bucket other than the configured one,
typically when recovering onto a host whose config predates the backup.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			d, err := buildDeps(ctx, withBucket(bucket))
			if err != nil {
				return err
			}
			defer d.Close()

			fmt.Println("Starting restore...")
			result, err := restore.NewOrchestrator(d.cfg, d.store, d.objects, d.source, d.journal, d.logger).Run(ctx, name)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Println("Restore completed successfully!")
			fmt.Printf("  Archive:   %s\n", result.ResolvedName)
			fmt.Printf("  Decrypted: %v\n", result.Decrypted)
			for _, w := range result.Warnings {
				fmt.Printf("  WARNING: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Override the configured object store bucket")
	return cmd
}

// withBucket points the configured object store backend at a different
// bucket (or directory, for the local backend). Empty means no override.
func withBucket(bucket string) func(*config.Config) {
	return func(cfg *config.Config) {
		if bucket == "" {
			return
		}
		switch cfg.ObjectStore.Backend {
		case objectstore.BackendGCS:
			cfg.ObjectStore.GCS.Bucket = bucket
		case objectstore.BackendS3:
			cfg.ObjectStore.S3.Bucket = bucket
		case objectstore.BackendLocal:
			cfg.ObjectStore.LocalDir = bucket
		}
	}
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduled backups as a daemon",
		Long: `Run skiff as a long-running daemon executing backups on the cron
expression configured in 'schedule'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			return runDaemon(ctx, d)
		},
	}
}

func runDaemon(ctx context.Context, d *deps) error {
	fmt.Printf("Skiff %s starting...\n", Version)
	fmt.Printf("Schedule: %s\n", d.cfg.Schedule)

	scheduler := cron.New()
	_, err := scheduler.AddFunc(d.cfg.Schedule, func() {
		d.logger.Info().Msg("cron triggered backup")
		if err := runBackup(ctx, d); err != nil {
			d.logger.Error().Err(err).Msg("scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", d.cfg.Schedule, err)
	}

	scheduler.Start()

	fmt.Println("Daemon running. Press Ctrl+C to stop.")
	<-ctx.Done()

	// Wait for any in-flight backup before returning so its cleanup runs.
	fmt.Println("\nShutting down, waiting for in-flight jobs...")
	<-scheduler.Stop().Done()
	return nil
}

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage secrets in the configured backend",
	}
	cmd.AddCommand(
		newSecretsSetCmd(),
		newSecretsGetCmd(),
		newSecretsRmCmd(),
		newSecretsListCmd(),
	)
	return cmd
}

func newSecretsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret (value read from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			fmt.Print("Enter value: ")
			reader := bufio.NewReader(os.Stdin)
			value, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read value: %w", err)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return fmt.Errorf("value cannot be empty")
			}

			if err := d.store.Store(ctx, args[0], value); err != nil {
				return fmt.Errorf("store secret: %w", err)
			}
			fmt.Printf("Secret %s stored.\n", args[0])
			return nil
		},
	}
}

func newSecretsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print the latest value of a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			value, err := d.store.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get secret: %w", err)
			}
			fmt.Println(value)
			return nil
		},
	}
}

func newSecretsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a secret and all its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.store.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete secret: %w", err)
			}
			fmt.Printf("Secret %s deleted.\n", args[0])
			return nil
		},
	}
}

func newSecretsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List secrets in the namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			names, err := d.store.List(ctx)
			if err != nil {
				return fmt.Errorf("list secrets: %w", err)
			}
			if len(names) == 0 {
				fmt.Println("No secrets stored.")
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an age key pair for archive encryption",
		Long: `Generate an X25519 age key pair and store both halves in the secret
backend. Backups encrypt to the public key; restores of encrypted
archives require the private key.

Losing the private key makes every encrypted archive unrecoverable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if !force {
				if _, err := d.store.Get(ctx, secrets.NameAgePublicKey); err == nil {
					return fmt.Errorf("a key pair already exists (use --force to replace; old archives stay bound to the old key)")
				}
			}

			pair, err := agecrypt.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := d.store.Store(ctx, secrets.NameAgePublicKey, pair.Recipient); err != nil {
				return fmt.Errorf("store public key: %w", err)
			}
			if err := d.store.Store(ctx, secrets.NameAgePrivateKey, pair.Identity); err != nil {
				return fmt.Errorf("store private key: %w", err)
			}

			fmt.Println("Key pair generated and stored.")
			fmt.Printf("  Public key: %s\n", pair.Recipient)
			fmt.Printf("  Private key stored as secret %s-%s\n", d.cfg.Prefix, secrets.NameAgePrivateKey)
			fmt.Println("Future backups will be encrypted automatically.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing key pair")
	return cmd
}
