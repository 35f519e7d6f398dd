// internal/scanner/detect.go
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scanner-service/internal/protocol"
)

const (
	DefaultProbeTimeout = 500 * time.Millisecond
	DefaultMaxResync    = 8
)

// DetectorConfig tunes baud rate detection
type DetectorConfig struct {
	// ProbeTimeout bounds each wait for a reply to MDL
	ProbeTimeout time.Duration
	// MaxResync caps how many times MDL is resent after ERR replies at one
	// rate. The cap applies on top of ProbeTimeout, so a scanner that keeps
	// answering ERR quickly still moves detection on to the next rate.
	MaxResync int
	// CloseTimeout is passed to every probed port
	CloseTimeout time.Duration
}

// Detection is the outcome of a successful baud rate detection
type Detection struct {
	BaudRate int      `json:"baud_rate"`
	Identity []string `json:"identity"`
	// Trusted is false when the accepted frame did not echo MDL
	Trusted bool `json:"trusted"`
}

// Model returns the model identifier from the identity payload
func (d *Detection) Model() string {
	if len(d.Identity) == 0 {
		return ""
	}
	return d.Identity[0]
}

// Detector finds the link speed of a scanner by probing candidate rates
type Detector struct {
	opener protocol.Opener
	config DetectorConfig
	logger *zap.Logger
	sink   LogSink
}

// NewDetector creates a detector for the given opener
func NewDetector(opener protocol.Opener, config DetectorConfig, logger *zap.Logger, sink LogSink) *Detector {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	if config.MaxResync < 0 {
		config.MaxResync = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = DiscardSink
	}

	return &Detector{
		opener: opener,
		config: config,
		logger: logger.With(zap.String("component", "baud-detector")),
		sink:   sink,
	}
}

// Detect tries each candidate rate in order and returns the first that
// yields a device identity. Every opened port is closed before the next
// candidate is tried or Detect returns.
func (d *Detector) Detect(ctx context.Context, candidates []int) (*Detection, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidate baud rates", ErrNoBaudRate)
	}

	var lastErr error
	for _, rate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d.sink(fmt.Sprintf("Trying %d baud...", rate))

		detection, err := d.probe(ctx, rate)
		if err == nil {
			d.logger.Info("Baud rate detected",
				zap.Int("baud_rate", rate),
				zap.Strings("identity", detection.Identity),
				zap.Bool("trusted", detection.Trusted),
			)
			d.sink(fmt.Sprintf("Detected %d baud.", rate))
			return detection, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		d.logger.Debug("No usable response at baud rate",
			zap.Int("baud_rate", rate),
			zap.Error(err),
		)
		lastErr = err
	}

	return nil, fmt.Errorf("%w (tried %v): %w", ErrNoBaudRate, candidates, lastErr)
}

// probe opens the port at rate and asks for the model until a non-ERR frame
// arrives, the resync budget runs out, or a wait times out.
func (d *Detector) probe(ctx context.Context, rate int) (*Detection, error) {
	port, err := protocol.OpenPort(ctx, d.opener, rate, d.logger,
		protocol.WithCloseTimeout(d.config.CloseTimeout))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			d.logger.Warn("Failed to close port after probe",
				zap.Int("baud_rate", rate),
				zap.Error(cerr),
			)
		}
	}()

	for attempt := 0; ; attempt++ {
		// MDL goes out raw: the echo can't be trusted until the rate is known
		if err := port.WriteLine(ctx, CmdModel); err != nil {
			return nil, err
		}

		fields, err := d.readProbe(ctx, port)
		if err != nil {
			return nil, err
		}

		if fields[0] == ResponseError {
			if attempt >= d.config.MaxResync {
				return nil, fmt.Errorf("scanner answered %s to %d probes", ResponseError, attempt+1)
			}
			d.logger.Debug("Error frame during probe, resending",
				zap.Int("baud_rate", rate),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		trusted := fields[0] == CmdModel
		if !trusted {
			d.logger.Warn("Probe reply did not echo MDL, accepting anyway",
				zap.Int("baud_rate", rate),
				zap.Strings("fields", fields),
			)
			d.sink(fmt.Sprintf("Warning: unexpected reply at %d baud, identity may be unreliable.", rate))
		}

		return &Detection{
			BaudRate: rate,
			Identity: fields[1:],
			Trusted:  trusted,
		}, nil
	}
}

func (d *Detector) readProbe(ctx context.Context, port *protocol.Port) ([]string, error) {
	readCtx, cancel := context.WithTimeout(ctx, d.config.ProbeTimeout)
	defer cancel()

	fields, err := port.ReadLine(readCtx)
	if errors.Is(err, protocol.ErrIncompleteFrame) {
		return nil, fmt.Errorf("probe reply %q: %w", fields, err)
	}
	return fields, err
}
