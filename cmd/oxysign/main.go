package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/oxyhq/oxysign/internal/config"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitDenied  = 2 // sign-in request denied by the user
	ExitConfig  = 3
	ExitExpired = 4 // sign-in request expired without a decision
)

var rootCmd = &cobra.Command{
	Use:   "oxysign",
	Short: "Sign in with Oxy from another app",
	Long: `Cross-app authorization handshake client for the Oxy identity service.

oxysign registers an ephemeral sign-in session, presents it as a QR code,
deep link, and web authorize URL, then waits for the approving app to
complete the handshake over whichever notification channel answers first:
real-time push, status polling, or the redirect callback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Run the sign-in handshake",
	Long: `Start a sign-in attempt and wait for it to complete.

The command:
  - Registers a fresh handshake session (5 minute window)
  - Prints a QR code and deep link for the approving app, plus the web
    authorize URL
  - Listens on all notification channels and completes on the first
    terminal event
  - On expiry, offers to retry with a brand-new session

Exit codes:
  0 = Signed in
  1 = Error (registration, exchange, or transport failure)
  2 = Sign-in denied by the user
  4 = Session expired without a decision`,
	RunE: runSignin,
}

// overrideExitCode is set by subcommands so main() can call os.Exit() after
// cobra finishes. This avoids calling os.Exit() inside RunE which would
// bypass deferred functions. -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration file without starting a sign-in.

Checks for:
  - Valid YAML syntax
  - Required fields present
  - Valid URLs and scheme

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	// Global flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file (defaults + env overrides when omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	// Add subcommands
	rootCmd.AddCommand(signinCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	// If a subcommand set a specific exit code, use it.
	// This is done outside RunE so deferred functions run properly.
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("oxysign version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configDescription())

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	fmt.Println("Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Service API:     %s\n", cfg.Service.BaseURL)
	fmt.Printf("  Authorize UI:    %s\n", cfg.Service.AuthBaseURL)
	fmt.Printf("  Link scheme:     %s://\n", cfg.Service.Scheme)
	fmt.Printf("  Client tag:      %s\n", cfg.Service.ClientTag)
	fmt.Printf("  Session timeout: %d seconds\n", cfg.Session.TimeoutSeconds)
	fmt.Printf("  Poll interval:   %d seconds\n", cfg.Session.PollIntervalSeconds)
	if cfg.Callback.Listen != "" {
		fmt.Printf("  Callback:        %s\n", cfg.Callback.Listen)
		fmt.Printf("  Redirect URI:    %s\n", cfg.Callback.EffectiveRedirectURI())
	} else {
		fmt.Println("  Callback:        disabled")
	}
	fmt.Printf("  Log Level:       %s\n", cfg.Log.Level)
	fmt.Printf("  Log Format:      %s\n", cfg.Log.Format)

	return nil
}

func configDescription() string {
	if configFile == "" {
		return "(defaults + environment)"
	}
	return configFile
}
