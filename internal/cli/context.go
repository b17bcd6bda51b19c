package cli

import (
	"fmt"
	"os"

	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/color"
	"github.com/vibepruner/vibepruner/pkg/config"
	"github.com/vibepruner/vibepruner/pkg/logging"
)

// requireWorkdir discovers the work directory from CWD, applies its logging
// configuration, and returns it with its config, or exits with error.
func requireWorkdir() (*workdir.WorkDir, *config.Config) {
	cwd, err := os.Getwd()
	if err != nil {
		fmtErr("cannot get current directory: %v", err)
		os.Exit(1)
	}
	wd, err := workdir.Discover(cwd)
	if err != nil {
		fmtErr("not a vibepruner project: %v", err)
		fmt.Fprintln(os.Stderr, "  run 'vibepruner init' in the project root first")
		os.Exit(1)
	}

	cfg, err := config.Load(wd.Root)
	if err != nil {
		fmtErr("load configuration: %v", err)
		os.Exit(1)
	}
	applyLogging(cfg)
	return wd, cfg
}

func applyLogging(cfg *config.Config) {
	format := logging.FormatJSON
	if cfg.Logging.Format == "text" {
		format = logging.FormatText
	}
	logging.SetGlobal(logging.NewLogger(logging.Level(cfg.Logging.Level), format))
}

func fmtErr(format string, args ...any) {
	prefix := "vibepruner: "
	if color.Enabled() {
		prefix = color.Error("vibepruner:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
