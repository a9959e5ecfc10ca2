package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mediasvc/internal/config"
	"mediasvc/internal/logging"
	"mediasvc/internal/server/app"
	"mediasvc/internal/server/bootstrap"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// isTTY checks if stdout is attached to a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func errorText(msg string) string {
	return red("error: " + msg)
}

// CLI holds state shared by subcommands.
type CLI struct {
	configFile string
	envFile    string
	noColor    bool
	cfg        config.Config
}

func (c *CLI) load() error {
	if c.noColor || !isTTY() {
		color.NoColor = true
	}
	cfg, err := config.Load(config.LoadOptions{ConfigFile: c.configFile, EnvFile: c.envFile})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg
	return nil
}

// openService builds the media service without the HTTP layer.
func (c *CLI) openService(ctx context.Context) (*app.MediaService, func(), error) {
	return bootstrap.NewMediaService(ctx, c.cfg, nil, logging.NewComponentLogger("CLI"))
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	cli := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "mediasvc",
		Short: "Media storage and streaming service",
		Long: `mediasvc stores uploaded images and videos and serves them back over HTTP,
with byte-range streaming for video.

Running without a subcommand starts the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return cli.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.RunServer(cli.cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cli.configFile, "config", "c", "", "Config file (default ./mediasvc.yaml or $HOME/.mediasvc/mediasvc.yaml)")
	rootCmd.PersistentFlags().StringVar(&cli.envFile, "env-file", "", "Dotenv file loaded before the environment (default .env)")
	rootCmd.PersistentFlags().BoolVar(&cli.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newServeCommand(cli))
	rootCmd.AddCommand(newSweepCommand(cli))
	rootCmd.AddCommand(newStatsCommand(cli))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newServeCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.RunServer(cli.cfg)
		},
	}
}

func newSweepCommand(cli *CLI) *cobra.Command {
	var (
		olderThan time.Duration
		assumeYes bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete media older than the retention window",
		Long: `Delete every stored object created before now minus --older-than.

When --older-than is not given the configured storage.retention_days is used,
falling back to 30 days. On a terminal the command asks for confirmation
unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			maxAge := olderThan
			if maxAge <= 0 {
				maxAge = cli.cfg.Storage.Retention()
			}
			if maxAge <= 0 {
				maxAge = app.DefaultRetention
			}
			if !assumeYes && isTTY() {
				ok, err := confirm(fmt.Sprintf("Delete %s media older than %s", cli.cfg.Storage.Type, maxAge))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), gray("Sweep cancelled"))
					return nil
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			service, cleanup, err := cli.openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			janitor := &app.Janitor{Service: service, MaxAge: maxAge, Logger: logging.NewComponentLogger("Retention")}
			result, err := janitor.Sweep(ctx)
			printSweep(cmd.OutOrStdout(), maxAge, result)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Delete objects older than this age (e.g. 720h)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// confirm asks a yes/no question on the terminal.
func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func printSweep(w io.Writer, maxAge time.Duration, result app.SweepResult) {
	fmt.Fprintf(w, "%s older than %s\n", bold("Sweep"), maxAge)
	fmt.Fprintf(w, "  scanned: %d\n", result.Scanned)
	fmt.Fprintf(w, "  deleted: %s\n", green(result.Deleted))
	fmt.Fprintf(w, "  freed:   %s\n", app.FormatMegabytes(result.FreedBytes))
}

func newStatsCommand(cli *CLI) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			service, cleanup, err := cli.openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := service.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(out, "%s %s\n", bold("Storage:"), cyan(stats.StorageType))
			fmt.Fprintf(out, "  files:  %d (%d images, %d videos)\n", stats.TotalFiles, stats.ImageCount, stats.VideoCount)
			fmt.Fprintf(out, "  size:   %.2f MB\n", float64(stats.TotalSize)/(1<<20))
			if stats.LastUpload != nil {
				fmt.Fprintf(out, "  latest: %s\n", stats.LastUpload.UTC().Format(time.RFC3339))
			} else {
				fmt.Fprintf(out, "  latest: %s\n", gray("none"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
		},
	}
}
