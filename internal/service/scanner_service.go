// internal/service/scanner_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scanner-service/internal/config"
	"scanner-service/internal/model"
	"scanner-service/internal/protocol"
	"scanner-service/internal/repository"
	"scanner-service/internal/scanner"
	"scanner-service/internal/utils"
)

// ErrPortBusy is returned when a port already has a detection or session running
var ErrPortBusy = errors.New("port is busy")

// OpenerFactory returns an opener for the named serial port
type OpenerFactory func(portName string) (protocol.Opener, error)

// EventPublisher receives session events
type EventPublisher interface {
	Publish(event *model.SessionEvent)
}

// ScannerService coordinates baud detection and read sessions per port
type ScannerService struct {
	runRepo repository.SessionRunRepository
	openers OpenerFactory
	events  EventPublisher
	config  *config.ScannerConfig
	logger  *utils.ServiceLogger

	mu    sync.Mutex
	busy  map[string]bool
	bauds map[string]int
}

// DetectRequest asks for baud detection on a port
type DetectRequest struct {
	Port string `json:"port"`
	// Candidates overrides the configured candidate rates
	Candidates []int `json:"candidates,omitempty"`
}

// SessionRequest asks for a full read session
type SessionRequest struct {
	Port string `json:"port"`
	// BaudRate fixes the link speed; 0 uses the cached or detected rate
	BaudRate int `json:"baud_rate,omitempty"`
}

// SessionResult is the outcome of a read session
type SessionResult struct {
	Run     *model.SessionRun      `json:"run"`
	Systems []scanner.SystemRecord `json:"systems"`
	Log     []string               `json:"log"`
}

// NewScannerService creates a new scanner service instance. A nil openers
// factory opens real serial ports with the configured line settings.
func NewScannerService(
	runRepo repository.SessionRunRepository,
	openers OpenerFactory,
	events EventPublisher,
	config *config.ScannerConfig,
	logger *zap.Logger,
) *ScannerService {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ScannerService{
		runRepo: runRepo,
		openers: openers,
		events:  events,
		config:  config,
		logger:  utils.NewServiceLogger(logger, "scanner-service"),
		busy:    make(map[string]bool),
		bauds:   make(map[string]int),
	}
	if s.openers == nil {
		s.openers = s.serialOpener
	}
	return s
}

func (s *ScannerService) serialOpener(portName string) (protocol.Opener, error) {
	return protocol.NewSerialOpener(s.config.SerialConfig(portName), s.logger.Logger)
}

// ListPorts returns the serial ports present on this host
func (s *ScannerService) ListPorts(ctx context.Context) ([]protocol.PortInfo, error) {
	ports, err := protocol.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// CachedBaudRate returns the last rate detected on port, if any
func (s *ScannerService) CachedBaudRate(port string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate, ok := s.bauds[port]
	return rate, ok
}

// Detect probes the port for its link speed and caches the result
func (s *ScannerService) Detect(ctx context.Context, req *DetectRequest) (*scanner.Detection, error) {
	port, err := s.resolvePort(req.Port)
	if err != nil {
		return nil, err
	}

	candidates := req.Candidates
	if len(candidates) == 0 {
		candidates = s.config.CandidateBaudRates
	}
	for _, rate := range candidates {
		if err := protocol.ValidateBaudRate(rate); err != nil {
			return nil, &ValidationError{Field: "candidates", Message: err.Error()}
		}
	}

	release, err := s.acquire(port)
	if err != nil {
		return nil, err
	}
	defer release()

	runID := uuid.New()
	sessionLogger := utils.NewSessionLogger(s.logger.Logger, runID.String(), port)
	sink := utils.NewSinkTee(sessionLogger, s.publishLine(runID, port))

	detection, err := s.detect(ctx, port, candidates, sink)
	sessionLogger.LogDetection(detectedRate(detection), detection != nil && detection.Trusted, err)
	if err != nil {
		return nil, err
	}
	s.publish(model.EventBaudDetected, runID, port, detectionData(detection))
	return detection, nil
}

// RunSession connects to the scanner, reads every system record and
// records the run in the session history.
func (s *ScannerService) RunSession(ctx context.Context, req *SessionRequest) (*SessionResult, error) {
	port, err := s.resolvePort(req.Port)
	if err != nil {
		return nil, err
	}
	if req.BaudRate != 0 {
		if err := protocol.ValidateBaudRate(req.BaudRate); err != nil {
			return nil, &ValidationError{Field: "baud_rate", Message: err.Error()}
		}
	}

	release, err := s.acquire(port)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SessionTimeout)
		defer cancel()
	}

	run := model.NewSessionRun(port)
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create session run: %w", err)
	}

	result := &SessionResult{Run: run, Systems: []scanner.SystemRecord{}}
	sessionLogger := utils.NewSessionLogger(s.logger.Logger, run.ID.String(), port)
	sink := utils.NewSinkTee(sessionLogger, s.publishLine(run.ID, port), func(line string) {
		result.Log = append(result.Log, line)
	})

	s.publish(model.EventSessionStarted, run.ID, port, model.JSONObject{"baud_rate": req.BaudRate})

	report, err := s.runSession(ctx, run, req.BaudRate, sink, func(record scanner.SystemRecord) error {
		result.Systems = append(result.Systems, record)
		s.publish(model.EventSystemFound, run.ID, port, model.JSONObject{
			"index": record.Index,
			"name":  record.Name,
			"type":  record.Type,
		})
		return nil
	})

	if report != nil {
		applyReport(run, report)
	}
	run.Finish(err)
	sessionLogger.LogFinish(run.State, run.SystemsRead, err)

	if err != nil {
		// the link may have changed speed or been swapped; detect again next time
		s.forgetBaudRate(port)
		s.publish(model.EventSessionFailed, run.ID, port, model.JSONObject{
			"state": run.State,
			"error": err.Error(),
		})
	} else {
		s.publish(model.EventSessionCompleted, run.ID, port, model.JSONObject{
			"state":        run.State,
			"systems_read": run.SystemsRead,
		})
	}

	// the session context may already be spent
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if uerr := s.runRepo.Update(saveCtx, run); uerr != nil {
		s.logger.Error("Failed to update session run",
			zap.String("session_id", run.ID.String()),
			zap.Error(uerr),
		)
	}

	return result, err
}

// GetSession returns one session history row
func (s *ScannerService) GetSession(ctx context.Context, id uuid.UUID) (*model.SessionRun, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session run: %w", err)
	}
	return run, nil
}

// ListSessions returns a page of session history
func (s *ScannerService) ListSessions(ctx context.Context, filter *repository.SessionRunFilter) (*SessionListResponse, error) {
	filter.Normalize()

	runs, total, err := s.runRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list session runs: %w", err)
	}

	totalPages := (total + filter.PerPage - 1) / filter.PerPage
	return &SessionListResponse{
		Sessions:   runs,
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: totalPages,
	}, nil
}

// SessionListResponse represents a page of session history
type SessionListResponse struct {
	Sessions   []*model.SessionRun `json:"sessions"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	TotalPages int                 `json:"total_pages"`
}

func (s *ScannerService) runSession(ctx context.Context, run *model.SessionRun, baudRate int, sink scanner.LogSink, emit func(scanner.SystemRecord) error) (*scanner.Report, error) {
	if baudRate == 0 {
		if cached, ok := s.CachedBaudRate(run.Port); ok {
			baudRate = cached
		} else if s.config.BaudRate != 0 {
			baudRate = s.config.BaudRate
		} else {
			detection, err := s.detect(ctx, run.Port, s.config.CandidateBaudRates, sink)
			if err != nil {
				run.State = scanner.StateFailed.String()
				return nil, err
			}
			baudRate = detection.BaudRate
			run.BaudDetected = true
			run.Trusted = detection.Trusted
			s.publish(model.EventBaudDetected, run.ID, run.Port, detectionData(detection))
		}
	}
	run.BaudRate = baudRate
	if !run.BaudDetected {
		run.Trusted = true
	}

	opener, err := s.openers(run.Port)
	if err != nil {
		run.State = scanner.StateFailed.String()
		return nil, fmt.Errorf("failed to create opener: %w", err)
	}

	return scanner.Run(ctx, opener, s.config.SessionConfig(baudRate), s.logger.Logger, sink, emit)
}

func (s *ScannerService) detect(ctx context.Context, port string, candidates []int, sink scanner.LogSink) (*scanner.Detection, error) {
	opener, err := s.openers(port)
	if err != nil {
		return nil, fmt.Errorf("failed to create opener: %w", err)
	}

	detector := scanner.NewDetector(opener, s.config.DetectorConfig(), s.logger.Logger, sink)
	detection, err := detector.Detect(ctx, candidates)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.bauds[port] = detection.BaudRate
	s.mu.Unlock()
	return detection, nil
}

func (s *ScannerService) resolvePort(port string) (string, error) {
	if port == "" {
		port = s.config.Port
	}
	if port == "" {
		return "", &ValidationError{Field: "port", Message: "port is required"}
	}
	return port, nil
}

func (s *ScannerService) acquire(port string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[port] {
		return nil, fmt.Errorf("%w: %s", ErrPortBusy, port)
	}
	s.busy[port] = true

	return func() {
		s.mu.Lock()
		delete(s.busy, port)
		s.mu.Unlock()
	}, nil
}

func (s *ScannerService) forgetBaudRate(port string) {
	s.mu.Lock()
	delete(s.bauds, port)
	s.mu.Unlock()
}

func (s *ScannerService) publishLine(sessionID uuid.UUID, port string) func(string) {
	return func(line string) {
		if line == "" {
			return
		}
		s.publish(model.EventSessionLog, sessionID, port, model.JSONObject{"line": line})
	}
}

func (s *ScannerService) publish(eventType model.EventType, sessionID uuid.UUID, port string, data model.JSONObject) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.NewSessionEvent(eventType, sessionID, port, data))
}

func applyReport(run *model.SessionRun, report *scanner.Report) {
	run.Model = report.Model
	run.SystemCount = report.SystemCount
	run.SystemsRead = report.Systems
	run.State = report.State.String()
	run.MemoryUsed = report.MemoryUsed
	if report.PortStats != nil {
		run.PortStats = model.JSONObject{
			"bytes_written":  report.PortStats.BytesWritten,
			"bytes_read":     report.PortStats.BytesRead,
			"frames_written": report.PortStats.FramesWritten,
			"frames_read":    report.PortStats.FramesRead,
			"error_count":    report.PortStats.ErrorCount,
		}
	}
}

func detectionData(detection *scanner.Detection) model.JSONObject {
	return model.JSONObject{
		"baud_rate": detection.BaudRate,
		"model":     detection.Model(),
		"trusted":   detection.Trusted,
	}
}

func detectedRate(detection *scanner.Detection) int {
	if detection == nil {
		return 0
	}
	return detection.BaudRate
}

// ValidationError reports a bad request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
