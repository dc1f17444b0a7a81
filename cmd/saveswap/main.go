package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"saveswap/internal/app"
	"saveswap/internal/config"
	"saveswap/internal/swap"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "operation failed (details: saveswap log): %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newApp reads the config and creates a SwapApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Backup", "Restore").
func newApp(cmd *cobra.Command, operation string, args []string) (*app.SwapApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.Options{Parameters: strings.Join(args, " ")}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.Echo = os.Stderr
	}

	a, err := app.NewSwapApp(cmd.Context(), cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func printAccount(a *swap.Account) {
	lastBackup := "never"
	if a.LastBackupAt != nil {
		lastBackup = a.LastBackupAt.Local().Format("2006-01-02 15:04:05")
	}
	ownership := "-"
	if a.Ownership != nil {
		ownership = a.Ownership.String()
	}
	fmt.Printf("ID:          %d\n", a.ID)
	fmt.Printf("Name:        %s\n", a.Name)
	fmt.Printf("Backup Path: %s\n", a.BackupPath)
	fmt.Printf("Device ID:   %s\n", a.DeviceID)
	fmt.Printf("Network ID:  %s\n", a.NetworkID)
	fmt.Printf("Sus Level:   %d\n", a.SusLevel)
	fmt.Printf("Has Error:   %v\n", a.HasError)
	fmt.Printf("Ownership:   %s\n", ownership)
	fmt.Printf("Last Backup: %s\n", lastBackup)
}

var rootCmd = &cobra.Command{
	Use:           "saveswap",
	Short:         "Swap app save data between accounts on a rooted device",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.App.Package, _ = cmd.Flags().GetString("package")
		if cfg.App.Package != "" {
			cfg.App.DataDir = "/data/data/" + cfg.App.Package
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		if cfg.App.DataDir == "" {
			fmt.Println("Set app.package and app.data_dir before the first backup.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		remoteType := cfg.Remote.Type
		if remoteType == "" {
			remoteType = "none"
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Executor:     %s\n", cfg.Executor.Mode)
		fmt.Printf("Package:      %s\n", cfg.App.Package)
		fmt.Printf("Data Dir:     %s\n", cfg.App.DataDir)
		fmt.Printf("Storage Root: %s\n", cfg.Storage.Root)
		fmt.Printf("Archive Dir:  %s\n", cfg.Storage.ArchiveDir)
		fmt.Printf("Encryption:   %v\n", cfg.Encryption.Enabled)
		fmt.Printf("Remote:       %s (auto upload: %v)\n", remoteType, cfg.Remote.AutoUpload)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "InitKeys", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.KeysConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}
		pass, err := promptAndConfirmPassphrase()
		if err != nil {
			return err
		}
		if err := a.InitKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys created. Set encryption.enabled = true to encrypt uploaded archives.")
		return nil
	},
}

// account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID, _ := cmd.Flags().GetString("device-id")
		networkID, _ := cmd.Flags().GetString("network-id")

		a, err := newApp(cmd, "AddAccount", args)
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.AddAccount(cmd.Context(), args[0], deviceID, networkID)
		if err != nil {
			return err
		}

		fmt.Printf("Added account #%d %s (backups in %s)\n", account.ID, account.Name, account.BackupPath)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListAccounts", args)
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.ListAccounts(cmd.Context())
		if err != nil {
			return err
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts registered.")
			return nil
		}

		for _, acct := range accounts {
			lastBackup := "never"
			if acct.LastBackupAt != nil {
				lastBackup = acct.LastBackupAt.Local().Format("2006-01-02 15:04:05")
			}
			flag := " "
			if acct.HasError {
				flag = "!"
			}
			fmt.Printf("#%-4d %s %-20s  sus:%d  last backup: %s\n", acct.ID, flag, acct.Name, acct.SusLevel, lastBackup)
		}
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show ACCOUNT",
	Short: "Show account details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GetAccount", args)
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.GetAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printAccount(account)
		return nil
	},
}

var accountSetStatusCmd = &cobra.Command{
	Use:   "set-status ACCOUNT",
	Short: "Set the suspicion level and error flag of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sus, _ := cmd.Flags().GetInt("sus")
		hasError, _ := cmd.Flags().GetBool("error")

		a, err := newApp(cmd, "SetAccountStatus", args)
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.SetAccountStatus(cmd.Context(), args[0], sus, hasError)
		if err != nil {
			return err
		}
		fmt.Printf("Account %s: sus level %d, error %v\n", account.Name, account.SusLevel, account.HasError)
		return nil
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete ACCOUNT",
	Short: "Delete an account and its backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeleteAccount", args)
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.DeleteAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted account %s\n", account.Name)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup ACCOUNT",
	Short: "Copy the live app data into the account's backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Backup", args)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Backup(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		printWarnings(result.Warnings)
		fmt.Printf("Backed up %s to %s\n", result.Account.Name, result.Account.BackupPath)
		if result.Ownership != nil {
			fmt.Printf("Ownership: %s\n", result.Ownership)
		}
		if result.Uploaded != nil {
			fmt.Printf("Uploaded %s (%d bytes)\n", result.Uploaded.Name, result.Uploaded.Bytes)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore ACCOUNT",
	Short: "Replace the live app data with the account's backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Restore", args)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Restore(cmd.Context(), args[0], func(s swap.RestoreState) {
			if s == swap.RestoreRestoring {
				fmt.Println("Restoring...")
			}
		})
		if err != nil {
			return err
		}

		printWarnings(result.Warnings)
		if result.State != swap.RestoreSuccess {
			return fmt.Errorf("restore failed: %w", result.Reason)
		}
		fmt.Println("Restore complete")
		return nil
	},
}

// perms command
var permsCmd = &cobra.Command{
	Use:   "perms",
	Short: "Inspect and repair ownership",
}

var permsGetCmd = &cobra.Command{
	Use:   "get [PATH]",
	Short: "Show owner, group and mode of a path (default: app data directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "InspectPermissions", args)
		if err != nil {
			return err
		}
		defer a.Close()

		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		perms, err := a.InspectPermissions(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Println(perms)
		return nil
	},
}

var permsFixCmd = &cobra.Command{
	Use:   "fix ACCOUNT",
	Short: "Re-apply the ownership recorded at the account's last backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "FixPermissions", args)
		if err != nil {
			return err
		}
		defer a.Close()

		perms, err := a.FixPermissions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Applied %s\n", perms)
		return nil
	},
}

// remote command
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Mirror backups to a remote target",
}

var remoteTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the remote connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "TestRemote", args)
		if err != nil {
			return err
		}
		defer a.Close()

		msg, err := a.TestRemote(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var remoteUploadCmd = &cobra.Command{
	Use:   "upload ACCOUNT",
	Short: "Archive the account's backup and upload it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "UploadSnapshot", args)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.UploadSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %s (%d bytes) in %s\n", result.Name, result.Bytes, result.Duration.Truncate(time.Millisecond))
		return nil
	},
}

var remoteDownloadCmd = &cobra.Command{
	Use:   "download ARCHIVE",
	Short: "Download an archive, optionally importing it into an account's backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		importInto, _ := cmd.Flags().GetString("import")

		a, err := newApp(cmd, "DownloadArchive", args)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.DownloadArchive(cmd.Context(), args[0], dir)
		if err != nil {
			return err
		}
		fmt.Printf("Downloaded %s (%d bytes) to %s\n", result.Name, result.Bytes, result.LocalPath)

		if importInto == "" {
			return nil
		}
		passphrase := func() (string, error) {
			return promptPassphrase("Passphrase for the archive key (input is not echoed): ")
		}
		if err := a.ImportArchive(cmd.Context(), importInto, result.LocalPath, passphrase); err != nil {
			return fmt.Errorf("importing archive: %w", err)
		}
		fmt.Printf("Imported into %s; run `saveswap restore %s` to apply it\n", importInto, importInto)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives on the remote target",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListRemote", args)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListRemote(cmd.Context())
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No archives on the remote.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %10d  %s\n", e.ModifiedAt.Local().Format("2006-01-02 15:04:05"), e.Size, e.Name)
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "RecentActivity", args)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.RecentActivity(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No activity recorded.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-7s  %-11s  %s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"),
				e.Level,
				e.Category,
				e.Message,
			)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Maintain the account database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent copy of the account database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "BackupDatabase", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupDatabase(args[0]); err != nil {
			return err
		}
		fmt.Printf("Database copied to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Echo log lines to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("package", "", "Package name of the app whose data is swapped")

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// account subcommands
	accountCmd.AddCommand(accountAddCmd)
	accountAddCmd.Flags().String("device-id", "", "Device identifier associated with the account")
	accountAddCmd.Flags().String("network-id", "", "Network identifier associated with the account")
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountSetStatusCmd)
	accountSetStatusCmd.Flags().Int("sus", 0, "Suspicion level")
	accountSetStatusCmd.Flags().Bool("error", false, "Mark the account as having an error")
	accountCmd.AddCommand(accountDeleteCmd)

	// perms subcommands
	permsCmd.AddCommand(permsGetCmd)
	permsCmd.AddCommand(permsFixCmd)

	// remote subcommands
	remoteCmd.AddCommand(remoteTestCmd)
	remoteCmd.AddCommand(remoteUploadCmd)
	remoteCmd.AddCommand(remoteDownloadCmd)
	remoteDownloadCmd.Flags().String("dir", "", "Download directory (default: storage.archive_dir)")
	remoteDownloadCmd.Flags().String("import", "", "Import the archive into this account's backup")
	remoteCmd.AddCommand(remoteListCmd)

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(permsCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	rootCmd.AddCommand(dbCmd)
}
