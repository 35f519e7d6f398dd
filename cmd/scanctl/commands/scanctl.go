package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"scanner-service/internal/config"
	"scanner-service/internal/protocol"
	"scanner-service/internal/utils"
)

// newOpener is replaced in tests
var newOpener = func(cfg *protocol.SerialConfig, logger *zap.Logger) (protocol.Opener, error) {
	return protocol.NewSerialOpener(cfg, logger)
}

// listPorts is replaced in tests
var listPorts = protocol.ListPorts

func ScanctlCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scanctl",
		Short:        "Read radio scanner programming over a serial link",
		Version:      version,
		SilenceUsage: true,
	}

	addLinkFlags(cmd.PersistentFlags())
	cmd.AddCommand(PortsCmd(), DetectCmd(), ReadCmd())
	return cmd
}

func addLinkFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Path to a config.yaml; the default search paths are used when empty")
	flags.StringP("port", "p", "", "Serial port of the scanner (overrides scanner.port)")
	flags.IntSlice("baud-rates", nil, "Candidate baud rates to probe, in order (overrides scanner.candidate_baud_rates)")
	flags.BoolP("verbose", "v", false, "Log protocol traffic to stderr")
}

// env is what every subcommand needs once flags and config are merged
type env struct {
	config *config.Config
	logger *zap.Logger
	out    io.Writer
}

func (e *env) close() {
	_ = e.logger.Sync()
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	port, err := flags.GetString("port")
	if err != nil {
		return nil, err
	}
	if port != "" {
		cfg.Scanner.Port = port
	}

	if flags.Changed("baud-rates") {
		rates, err := flags.GetIntSlice("baud-rates")
		if err != nil {
			return nil, err
		}
		for _, rate := range rates {
			if err := protocol.ValidateBaudRate(rate); err != nil {
				return nil, err
			}
		}
		cfg.Scanner.CandidateBaudRates = rates
	}

	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if verbose {
		logging := cfg.Logging
		logging.Level = "debug"
		logging.Format = "console"
		logging.Output = "stderr"
		if logger, err = utils.NewLogger(&logging); err != nil {
			return nil, err
		}
	}

	return &env{config: cfg, logger: logger, out: cmd.OutOrStdout()}, nil
}

func (e *env) opener() (protocol.Opener, error) {
	if e.config.Scanner.Port == "" {
		return nil, fmt.Errorf("no serial port given; use --port or scanner.port")
	}
	return newOpener(e.config.Scanner.SerialConfig(e.config.Scanner.Port), e.logger)
}

// sink prints session progress lines the way the service log stream shows them
func (e *env) sink(line string) {
	fmt.Fprintln(e.out, line)
}
