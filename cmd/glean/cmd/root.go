package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/glean/internal/config"
	"github.com/MeKo-Tech/glean/internal/models"
	"github.com/MeKo-Tech/glean/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries the state shared by the commands of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	loader  *config.Loader
}

// RootCmd is the command run by main.
var RootCmd = NewRootCommand()

// NewRootCommand builds the command tree on a fresh viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "glean",
		Short: "Detection-guided text extraction from images",
		Long: `glean reads the text out of license plate photos, chat screenshots and
arbitrary images. A detector locates the regions of interest, low quality
and overlapping boxes are filtered out, every region is read with Tesseract
and the fragments are assembled into reading order. When nothing usable is
detected the whole image is read instead.

Examples:
  glean extract car.jpg --domain plate
  glean extract screenshots/ --domain message --format json
  glean extract scan.png --domain generic --overlay-dir out/`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), a.cfg))
			return nil
		},
	}
	root.SetVersionTemplate(version.String() + "\n")

	defaultModelsDir := models.DefaultModelsDir
	if envDir := os.Getenv(models.EnvModelsDir); envDir != "" {
		defaultModelsDir = envDir
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/glean, /etc/glean)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", defaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")

	a.bind("verbose", pf.Lookup("verbose"))
	a.bind("log_level", pf.Lookup("log-level"))
	a.bind("models_dir", pf.Lookup("models-dir"))

	root.AddCommand(
		newExtractCommand(a),
		newDomainsCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return root
}

// bind ties a flag to a config key. Unchanged flags leave the config
// file and environment in charge.
func (a *app) bind(key string, flag *pflag.Flag) {
	_ = a.v.BindPFlag(key, flag)
}

// load resolves the configuration once per execution.
func (a *app) load() error {
	if a.cfg != nil {
		return nil
	}
	a.loader = config.NewLoaderWithViper(a.v)
	cfg, err := a.loader.LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
