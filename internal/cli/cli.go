package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vk/icupipe/internal/app"
)

// EnvPrefix prefixes the environment variables that back every flag.
const EnvPrefix = "ICUPIPE"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	var parsed *app.Config
	root := NewRootCommand(output, func(cfg *app.Config) { parsed = cfg })
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if parsed == nil {
		// Help or usage was printed.
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "config", parsed)
	return parsed, false, nil
}

// NewRootCommand builds the icupipe command tree. onRun receives the
// validated configuration of the run subcommand.
func NewRootCommand(output io.Writer, onRun func(*app.Config)) *cobra.Command {
	rc := &cobra.Command{
		Use:   "icupipe",
		Short: "icupipe - canonical ICU data from MIMIC-IV, eICU and AmsterdamUMCdb",
		Long: `icupipe extracts clinical concepts from ICU databases, converts them to
their declared units and writes them as FHIR-shaped records.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setAllConfig(viper.New(), cmd.Flags(), EnvPrefix)
		},
	}
	rc.SetOut(output)
	rc.SetErr(output)
	rc.AddCommand(newRunCommand(onRun))
	return rc
}

func newRunCommand(onRun func(*app.Config)) *cobra.Command {
	var (
		cfg      app.Config
		concepts []string
	)
	cmd := &cobra.Command{
		Use:   "run [CONCEPT...]",
		Short: "transform concepts for every configured source",
		Example: `  icupipe run HeartRate BodyTemperature --sources sources.hcl --output out
  ICUPIPE_SINK=jsonl icupipe run --concept Norepinephrine`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Concepts = append(append([]string{}, args...), concepts...)
			if len(cfg.Concepts) == 0 {
				return fmt.Errorf("no concepts given: pass CONCEPT arguments or --concept")
			}

			cfg.LogFormat = strings.ToLower(cfg.LogFormat)
			if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
				return fmt.Errorf("invalid log-format: must be 'text' or 'json'")
			}
			cfg.LogLevel = strings.ToLower(cfg.LogLevel)
			switch cfg.LogLevel {
			case "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
			}

			validated, err := app.NewConfig(cfg)
			if err != nil {
				return err
			}
			onRun(validated)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&concepts, "concept", nil, "Concept to transform; repeatable, added to the arguments.")
	flags.StringVar(&cfg.ConceptsPath, "concepts", "concepts", "Directory holding one <Concept>.hcl per concept.")
	flags.StringVar(&cfg.SourcesPath, "sources", "sources.hcl", "HCL file declaring the data sources.")
	flags.StringVar(&cfg.Sink, "sink", app.SinkCSV, "Output sink. Options: 'csv', 'jsonl', 'memory', 'socketio'.")
	flags.StringVarP(&cfg.OutputPath, "output", "o", "out", "Output directory of the file sinks.")
	flags.StringVar(&cfg.SocketURL, "socket-url", "", "socket.io server the socketio sink emits to.")
	flags.StringVar(&cfg.Execution, "execution", "sync", "Execution strategy. Options: 'sync', 'fanout'.")
	flags.IntVar(&cfg.WorkerCount, "workers", 0, "Concurrent reads per node with the fanout strategy. 0 is unbounded.")
	flags.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	flags.StringVar(&cfg.LogFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.String("config", "", "Optional config file; keys are flag names.")
	return cmd
}

// setAllConfig applies configuration from the command line, the environment
// and an optional config file, in that priority order, to every flag of
// flags. Environment variables are the upper case flag names with dashes
// replaced by underscores, prefixed with envPrefix and an underscore.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %w", c, err)
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			value = strings.Join(v.GetStringSlice(f.Name), ",")
			if value == "" {
				return
			}
		} else {
			value = v.GetString(f.Name)
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}
