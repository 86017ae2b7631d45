package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	configFile string
	verbosity  int
)

const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

// overrideExitCode lets check-config report through the exit status without
// calling os.Exit inside RunE. -1 means "use default".
var overrideExitCode = -1

var rootCmd = &cobra.Command{
	Use:   "cmsauth",
	Short: "Back-office session and permission service",
	Long: `cmsauth manages the session store, users and per-resource grants of a
content management back office, and can serve a small HTTP login API.

Configuration is read from a YAML file; CMSAUTH_* environment variables
override the secret and connection settings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP login API",
	Long: `Serve login, logout and session endpoints plus one authorization check per
configured resource under /resources/<name>. Expired sessions are swept on
the configured cron schedule.`,
	RunE: runServe,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Create the database tables",
	RunE:  runInstall,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions once",
	RunE:  runSweep,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage back-office users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Long: `Create a user. The password is read from --password, the CMSAUTH_PASSWORD
environment variable, or the first line of standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Replace a user's password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserPasswd,
}

var grantCmd = &cobra.Command{
	Use:   "grant <username> <resource> <permission>",
	Short: "Set a user's permission on one resource",
	Long: `Set the permission of a user on a configured resource. The permission is a
decimal (0-15), a 4-character bit string such as 0011, or capability names
such as read,update. --revoke removes the grant and ignores the permission
argument.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runGrant,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	RunE:  runCheckConfig,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print the Argon2id hash of a password read from standard input",
	Args:  cobra.NoArgs,
	RunE:  runHashPassword,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cmsauth version %s (%s)\n", version, commit)
	},
}

// Command flags
var (
	userPassword   string
	userSuper      bool
	userPermission string
	grantRevoke    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "cmsauth.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Log verbosity (0 = info)")

	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Initial password")
	userAddCmd.Flags().BoolVar(&userSuper, "super", false, "Create a super user")
	userAddCmd.Flags().StringVar(&userPermission, "permission", "1", "Global permission (decimal, bits or capability names)")
	userPasswdCmd.Flags().StringVar(&userPassword, "password", "", "New password")
	grantCmd.Flags().BoolVar(&grantRevoke, "revoke", false, "Remove the grant instead of setting it")

	userCmd.AddCommand(userAddCmd, userPasswdCmd)
	rootCmd.AddCommand(serveCmd, installCmd, sweepCmd, userCmd, grantCmd, checkConfigCmd, hashPasswordCmd, versionCmd)
}

func newLogger() logr.Logger {
	stdr.SetVerbosity(verbosity)
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("cmsauth")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}
