package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"scanner-service/internal/protocol"
	"scanner-service/internal/scanner"
)

func ReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read every system record from the scanner",
		Long: "Connects, enters programming mode, walks the system chain and exits\n" +
			"programming mode. The baud rate is detected unless --baud or\n" +
			"scanner.baud_rate fixes it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			baud, err := cmd.Flags().GetInt("baud")
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			return e.read(cmd, baud, asJSON)
		},
	}

	cmd.Flags().IntP("baud", "b", 0, "Link speed; 0 uses scanner.baud_rate or detects it")
	cmd.Flags().Bool("json", false, "Print the records as JSON instead of a table")
	return cmd
}

func (e *env) read(cmd *cobra.Command, baud int, asJSON bool) error {
	if baud == 0 {
		baud = e.config.Scanner.BaudRate
	}
	if baud == 0 {
		detection, err := e.detect(cmd)
		if err != nil {
			return err
		}
		baud = detection.BaudRate
	} else if err := protocol.ValidateBaudRate(baud); err != nil {
		return err
	}

	opener, err := e.opener()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if timeout := e.config.Scanner.SessionTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var systems []scanner.SystemRecord
	collect := func(rec scanner.SystemRecord) error {
		systems = append(systems, rec)
		return nil
	}

	report, err := scanner.Run(ctx, opener, e.config.Scanner.SessionConfig(baud), e.logger, e.sink, collect)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Report  *scanner.Report        `json:"report"`
			Systems []scanner.SystemRecord `json:"systems"`
		}{report, systems})
	}

	fmt.Fprintf(e.out, "\nModel %s at %d baud, %d of %d systems read",
		report.Model, report.BaudRate, report.Systems, report.SystemCount)
	if report.MemoryUsed.Valid {
		fmt.Fprintf(e.out, ", memory %s%% used", report.MemoryUsed.Decimal.String())
	}
	fmt.Fprintln(e.out)

	if len(systems) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTYPE\tNAME\tQUICK KEY\tLOCKOUT")
	for _, s := range systems {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.Index, s.Type, s.Name, s.QuickKey, s.Lockout)
	}
	return w.Flush()
}
