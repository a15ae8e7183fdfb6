package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stitchkit/stitch"
	"github.com/stitchkit/stitch/internal/resource"
	"github.com/stitchkit/stitch/internal/storage"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitPipeline = 2
	exitStorage  = 3
)

type app struct {
	v      *viper.Viper
	logger *log.Logger
	out    io.Writer
	errOut io.Writer
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := &app{v: viper.New(), out: out, errOut: errOut}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	color.Fprintf(a.errOut, "<red>error:</> %s\n", err)
	return exitCode(err)
}

// exitCode maps domain errors to the process exit status.
func exitCode(err error) int {
	var pipelineErr *resource.PipelineError
	var storageErr *storage.Error
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &pipelineErr):
		return exitPipeline
	case errors.As(err, &storageErr):
		return exitStorage
	}
	return exitFailure
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "stitch",
		Short: "Keep a GameMaker project's manifest in sync with its files",
		Long: `stitch imports assets and scripts into a GameMaker project and keeps the
.yyp manifest consistent, preserving every field it does not manage.

Settings can also be given as STITCH_* environment variables or in a
stitch.toml file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure()
		},
	}
	flags := root.PersistentFlags()
	flags.StringP("project", "p", ".", "directory holding the .yyp project file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("force", false, "modify the project even when git reports uncommitted changes")
	flags.Bool("allow-unknown-kinds", false, "load resource kinds stitch has no view for instead of failing")
	for _, name := range []string{"project", "log-level", "force", "allow-unknown-kinds"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		a.addSoundsCommand(),
		a.addSpritesCommand(),
		a.addScriptCommand(),
		a.listCommand(),
		a.functionsCommand(),
		a.refsCommand(),
		a.renameFunctionCommand(),
		a.foldersCommand(),
		a.removeCommand(),
		a.serveCommand(),
	)
	return root
}

func (a *app) configure() error {
	a.v.SetEnvPrefix("STITCH")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	a.v.SetConfigName("stitch")
	a.v.SetConfigType("toml")
	a.v.AddConfigPath(".")
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level, err := log.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger = log.NewWithOptions(a.errOut, log.Options{Level: level, Prefix: "stitch"})
	return nil
}

func (a *app) open() (*stitch.Project, error) {
	opts := []stitch.Option{stitch.WithLogger(a.logger)}
	if a.v.GetBool("allow-unknown-kinds") {
		opts = append(opts, stitch.WithAllowUnknownKinds())
	}
	return stitch.Open(a.v.GetString("project"), opts...)
}

// openForWrite opens the project after making sure a mutation can be undone
// through git.
func (a *app) openForWrite() (*stitch.Project, error) {
	dir := a.v.GetString("project")
	if !a.v.GetBool("force") {
		if err := checkGitClean(dir, a.logger); err != nil {
			return nil, err
		}
	}
	return a.open()
}

func (a *app) printf(format string, args ...any) {
	color.Fprintf(a.out, format, args...)
}
