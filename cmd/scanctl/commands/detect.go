package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scanner-service/internal/scanner"
)

func DetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Find the baud rate the scanner answers at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			detection, err := e.detect(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintf(e.out, "Model: %s\n", detection.Model())
			fmt.Fprintf(e.out, "Baud rate: %d\n", detection.BaudRate)
			if len(detection.Identity) > 1 {
				fmt.Fprintf(e.out, "Identity: %s\n", strings.Join(detection.Identity, ","))
			}
			if !detection.Trusted {
				fmt.Fprintln(e.out, "Warning: reply did not echo MDL")
			}
			return nil
		},
	}
	return cmd
}

func (e *env) detect(cmd *cobra.Command) (*scanner.Detection, error) {
	opener, err := e.opener()
	if err != nil {
		return nil, err
	}
	detector := scanner.NewDetector(opener, e.config.Scanner.DetectorConfig(), e.logger, e.sink)
	return detector.Detect(cmd.Context(), e.config.Scanner.CandidateBaudRates)
}
