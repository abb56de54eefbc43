package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/assetpipe/internal/app"
	"github.com/specialistvlad/assetpipe/internal/presets"
)

// Environment variables that provide flag defaults.
const (
	EnvPreset   = "ASSETPIPE_PRESET"
	EnvPort     = "ASSETPIPE_PORT"
	EnvLogLevel = "ASSETPIPE_LOG_LEVEL"
)

// DotEnvFile is read from the project directory (-dir) when present.
// Variables set in the real environment take precedence over it.
const DotEnvFile = ".env"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command is a parsed invocation.
type Command struct {
	Config *app.Config
	// Task is the task to run; empty runs the default task.
	Task string
	// List prints the declared tasks instead of running one.
	List bool
}

// Parse processes command-line arguments. It returns a populated Command,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Command, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("assetpipe", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprintf(output, `
assetpipe - Build front-end assets, serve them and reload the browser on change.

Usage:
  assetpipe [options] [TASK]

Arguments:
  TASK
    The task to run with its dependencies. Defaults to the build file's
    default task. Use -list to see the declared tasks.

Presets:
  %s (default %s)

Environment:
  %s, %s and %s provide defaults for -preset, -port and -log-level.
  A %s file in the project directory (-dir) is read as well.

Options:
`, strings.Join(presets.Names(), ", "), presets.Default, EnvPreset, EnvPort, EnvLogLevel, DotEnvFile)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to an HCL build file. Overrides -preset.")
	cFlag := flagSet.String("c", "", "Path to an HCL build file (shorthand).")
	presetFlag := flagSet.String("preset", presets.Default, "Built-in configuration to use: "+strings.Join(presets.Names(), ", ")+".")
	dirFlag := flagSet.String("dir", ".", "Project directory that source and build paths are relative to.")
	portFlag := flagSet.Int("port", 0, "Dev server port. 0 keeps the port of the build file.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Concurrent tasks and files per task. 0 picks a default.")
	cacheFlag := flagSet.Int("cache-size", 0, "Number of cached file transforms. 0 picks a default.")
	listFlag := flagSet.Bool("list", false, "List the declared tasks and exit.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	env, err := loadEnv(filepath.Join(*dirFlag, DotEnvFile))
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if !explicit["preset"] {
		*presetFlag = withDefault(env(EnvPreset), *presetFlag)
	}
	if !explicit["log-level"] {
		*logLevelFlag = withDefault(env(EnvLogLevel), *logLevelFlag)
	}
	if v := env(EnvPort); v != "" && !explicit["port"] {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid %s %q: must be a number", EnvPort, v)}
		}
		*portFlag = p
	}

	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected at most one task, got %d: %s", flagSet.NArg(), strings.Join(flagSet.Args(), " "))}
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = *cFlag
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath: configPath,
		Preset:     *presetFlag,
		Dir:        *dirFlag,
		Port:       *portFlag,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
		Workers:    *workersFlag,
		CacheSize:  *cacheFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	cmd := &Command{Config: config, Task: flagSet.Arg(0), List: *listFlag}
	slog.Debug("CLI parser finished successfully.", "config", config, "task", cmd.Task)
	return cmd, false, nil
}

// loadEnv returns a lookup over the process environment, falling back to the
// variables of the dotenv file at path.
func loadEnv(path string) (func(string) string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		vars = nil
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return vars[key]
	}, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
