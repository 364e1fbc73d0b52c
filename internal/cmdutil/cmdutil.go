// Package cmdutil holds functionality to run flowctl via cobra. That
// includes flag parsing and configuration of components common to all
// subcommands.
package cmdutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/pflag"

	"github.com/labflow/flowctl/internal/config"
	"github.com/labflow/flowctl/internal/notify"
	"github.com/labflow/flowctl/internal/ui"
)

// _envLogLevel is the environment variable that sets the default log
// level when no -v flag is given.
const _envLogLevel = "FLOWCTL_LOG_LEVEL"

// Helper holds configuration values passed via flag, env vars, and the
// pipeline config file. It is not used directly by subcommands; it
// drives construction of a CmdBase, which is.
type Helper struct {
	// Version is the flowctl version currently executing.
	Version string

	forceColor bool
	noColor    bool
	verbosity  int

	configPath string

	cleanupsMu sync.Mutex
	cleanups   []io.Closer
}

// RegisterCleanup saves a function to run after command execution, even
// if the command returns an error.
func (h *Helper) RegisterCleanup(cleanup io.Closer) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	h.cleanups = append(h.cleanups, cleanup)
}

// Cleanup runs every registered cleanup handler, warning on the UI for
// any that fail.
func (h *Helper) Cleanup(flags *pflag.FlagSet) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	var u cli.Ui
	for _, cleanup := range h.cleanups {
		if err := cleanup.Close(); err != nil {
			if u == nil {
				u = h.getUI(flags)
			}
			u.Warn(fmt.Sprintf("failed cleanup: %v", err))
		}
	}
}

func (h *Helper) getUI(flags *pflag.FlagSet) cli.Ui {
	colorMode := ui.GetColorModeFromEnv()
	if flags.Changed("no-color") && h.noColor {
		colorMode = ui.ColorModeSuppressed
	}
	if flags.Changed("color") && h.forceColor {
		colorMode = ui.ColorModeForced
	}
	return ui.BuildColoredUi(colorMode)
}

func (h *Helper) getLogger() (hclog.Logger, error) {
	var level hclog.Level
	switch h.verbosity {
	case 0:
		if v := os.Getenv(_envLogLevel); v != "" {
			level = hclog.LevelFromString(v)
			if level == hclog.NoLevel {
				return nil, fmt.Errorf("%s value %q is not a valid log level", _envLogLevel, v)
			}
		} else {
			level = hclog.NoLevel
		}
	case 1:
		level = hclog.Info
	case 2:
		level = hclog.Debug
	case 3:
		level = hclog.Trace
	default:
		level = hclog.Trace
	}

	output := ioutil.Discard
	logColor := hclog.ColorOff
	if level != hclog.NoLevel {
		output = os.Stderr
		logColor = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "flowctl",
		Level:  level,
		Color:  logColor,
		Output: output,
	}), nil
}

// AddFlags adds the flags common to every flowctl subcommand to flags,
// binding them to this Helper.
func (h *Helper) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&h.forceColor, "color", false, "force color usage in the terminal")
	flags.BoolVar(&h.noColor, "no-color", false, "suppress color usage in the terminal")
	flags.CountVarP(&h.verbosity, "verbosity", "v", "verbosity")
	flags.StringVar(&h.configPath, "config", "flowctl.yaml", "path to the pipeline configuration document")
}

// NewHelper returns a Helper for the given flowctl version.
func NewHelper(version string) *Helper {
	return &Helper{Version: version}
}

// GetCmdBase loads the pipeline configuration and builds the UI/logger
// shared by every subcommand.
func (h *Helper) GetCmdBase(flags *pflag.FlagSet) (*CmdBase, error) {
	terminal := h.getUI(flags)

	logger, err := h.getLogger()
	if err != nil {
		return nil, err
	}

	absConfigPath, err := filepath.Abs(h.configPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %q: %w", h.configPath, err)
	}

	model, err := config.Load(absConfigPath)
	if err != nil {
		return nil, err
	}

	return &CmdBase{
		UI:         terminal,
		Logger:     logger,
		Config:     model,
		ConfigPath: absConfigPath,
		Notifier:   notify.New(model.Notify, logger),
		Version:    h.Version,
		Verbosity:  h.verbosity,
	}, nil
}

// CmdBase holds the components shared by every flowctl subcommand.
type CmdBase struct {
	UI         cli.Ui
	Logger     hclog.Logger
	Config     *config.Model
	ConfigPath string
	Notifier   *notify.Notifier
	Version    string
	// Verbosity is the number of times -v was passed; >0 enables live
	// streaming of child process output in addition to the annotation
	// capture.
	Verbosity int
}

// LogError prints an error to the UI and the log.
func (b *CmdBase) LogError(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	b.Logger.Error("error", err)
	b.UI.Error(fmt.Sprintf("%s%s", ui.ERROR_PREFIX, color.RedString(" %v", err)))
}

// LogWarning logs and prints a warning, prefixed with an optional tag.
func (b *CmdBase) LogWarning(prefix string, err error) {
	b.Logger.Warn(prefix, "warning", err)

	if prefix != "" {
		prefix = " " + prefix + ": "
	}

	b.UI.Warn(fmt.Sprintf("%s%s%s", ui.WARNING_PREFIX, prefix, color.YellowString(" %v", err)))
}

// LogInfo logs and prints an informational message.
func (b *CmdBase) LogInfo(msg string) {
	b.Logger.Info(msg)
	b.UI.Info(fmt.Sprintf("%s%s", ui.InfoPrefix, color.WhiteString(" %v", msg)))
}
