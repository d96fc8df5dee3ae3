package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/archive"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/search"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "vfsctl: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// env is what every command runs against
type env struct {
	fs      *vfs.LocalFileSystem
	cfg     *config.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	index   *search.MemoryIndex
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("vfsctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	root := flags.String("root", "", "VFS root directory (default $VFS_ROOT)")
	configFile := flags.String("config", "", "YAML or TOML configuration file")
	logLevel := flags.String("log-level", "", "Log level: debug, info, warn, error")
	showMetrics := flags.Bool("metrics", false, "Print a metrics summary after the command")
	flags.Usage = func() { usage(flags) }
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		usage(flags)
		return errUsage
	}

	name, cmdArgs := flags.Arg(0), flags.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		usage(flags)
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	if *root != "" {
		cfg.VFS.Root = *root
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics()
	}

	compression, err := archive.ParseCompression(cfg.VFS.TarCompression)
	if err != nil {
		return err
	}
	opts := []vfs.Option{
		vfs.WithLogger(logger),
		vfs.WithMetrics(metrics),
		vfs.WithLockSweep(cfg.VFS.LockSweepInterval),
		vfs.WithArchiverFactory(archive.NewFactory(
			archive.WithControlDir(vfs.ControlDirName),
			archive.WithTarCompression(compression),
		)),
	}
	var index *search.MemoryIndex
	if cfg.Index.Enabled {
		index = search.NewMemoryIndex(
			search.WithMaxFileSize(cfg.Index.MaxFileSize),
			search.WithExcludedDir(vfs.ControlDirName),
			search.WithIndexLogger(logger),
		)
		opts = append(opts, vfs.WithSearcher(search.NewGuard(index, resilience.Settings{
			TripAfter: cfg.Index.TripAfter,
			Cooldown:  cfg.Index.Cooldown,
		}, logger)))
	}
	if cfg.VFS.CreateRoot {
		opts = append(opts, vfs.WithCreateRoot())
	}
	lfs, err := vfs.New(cfg.VFS.Root, opts...)
	if err != nil {
		return err
	}
	defer lfs.Close()

	e := &env{
		fs:      lfs,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		index:   index,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
	err = cmd.run(e, cmdArgs)
	if *showMetrics {
		if werr := metrics.WriteSummary(stderr); werr != nil {
			logger.Warn("Failed to write metrics summary", zap.Error(werr))
		}
	}
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func usage(flags *flag.FlagSet) {
	out := flags.Output()
	fmt.Fprintln(out, "Usage: vfsctl [flags] <command> [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	flags.PrintDefaults()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-8s %s\n", name, commands[name].summary)
		fmt.Fprintf(out, "  %-8s   %s %s\n", "", name, commands[name].usage)
	}
}

var errUsage = errors.New("usage error")

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage), errors.Is(err, vfs.ErrInvalidPath):
		return 2
	case errors.Is(err, vfs.ErrNotFound):
		return 3
	case errors.Is(err, vfs.ErrConflict):
		return 4
	case errors.Is(err, vfs.ErrForbidden):
		return 5
	}
	return 1
}

// splitList splits a comma separated flag value
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
