// Package main implements the plains CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/plains/internal/config"
	"github.com/fyrsmithlabs/plains/internal/pipeline"
	"github.com/spf13/cobra"
)

// version information
var version = "dev"

// errReported marks a failure whose report was already written.
var errReported = errors.New("build failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// flags holds the persistent flags shared by every command.
type flags struct {
	configPath string
	source     string
	dest       string
	mode       string
	logLevel   string
	httpPort   int
	json       bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "plains [hooks...]",
		Short: "Run build tasks in hook order",
		Long: `plains runs the tasks configured in plains.yaml.

Each argument is a hook expression. Hooks joined with "." run concurrently
in one stage; hooks joined with "," run as successive stages. With no
arguments the "default" hook is published.

Examples:
  # Clean, then build styles and scripts together, then write the manifest
  plains clean,styles.scripts,manifest

  # Development build that logs compiler errors and keeps going
  plains --mode development styles

  # Serve build status while a watch task runs
  plains --http-port 8089 watch`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, f, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file (default ./plains.yaml when present)")
	pf.StringVar(&f.source, "source", "", "source root")
	pf.StringVar(&f.dest, "dest", "", "destination root")
	pf.StringVar(&f.mode, "mode", "", "build mode: production or development")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.IntVar(&f.httpPort, "http-port", 0, "serve build status on this port (0 disables)")
	pf.BoolVar(&f.json, "json", false, "print machine-readable output")

	root.AddCommand(newTasksCmd(f))
	root.AddCommand(newEntriesCmd(f))
	root.AddCommand(newKindsCmd(f))
	return root
}

// loadConfig loads configuration with the flags that were set applied on top.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	overrides := map[string]any{}
	set := func(flag, key string, value any) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("source", "source", f.source)
	set("dest", "destination", f.dest)
	set("mode", "mode", f.mode)
	set("log-level", "logging.level", f.logLevel)
	set("http-port", "http.port", f.httpPort)

	return config.Load(f.configPath, overrides)
}

// openPipeline loads configuration and assembles the pipeline. The returned
// context is cancelled on SIGINT or SIGTERM.
func openPipeline(cmd *cobra.Command, f *flags) (context.Context, *pipeline.Pipeline, func(), error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	cleanup := func() {
		stop()
		_ = p.Close(context.Background())
	}
	return ctx, p, cleanup, nil
}

func runBuild(cmd *cobra.Command, f *flags, args []string) error {
	ctx, p, cleanup, err := openPipeline(cmd, f)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := p.Run(ctx, args...); err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), renderFailure(err))
		return errReported
	}
	return nil
}
