// Package scheduler drives repeated scan cycles for watch mode.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
)

// Scanner runs a single scan cycle
type Scanner interface {
	RunScan(ctx context.Context) (*models.ScanResult, error)
}

// Service runs one scan immediately and then one per interval until the context
// is cancelled. A tick that arrives while a scan is still running is skipped.
type Service struct {
	scanner  Scanner
	interval time.Duration
	logger   arbor.ILogger

	mu           sync.Mutex
	isProcessing bool
	runs         int
	skipped      int
	lastResult   *models.ScanResult
	lastError    error
}

// NewService creates a scheduler for the given interval
func NewService(scanner Scanner, interval time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		scanner:  scanner,
		interval: interval,
		logger:   logger,
	}
}

// Schedule returns the cron expression for the interval
func (s *Service) Schedule() string {
	return fmt.Sprintf("@every %s", s.interval)
}

// Watch blocks until ctx is cancelled. Scan failures are logged and the loop
// carries on; only an invalid schedule is returned as an error.
func (s *Service) Watch(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%w: scan interval must be positive, got %s", interfaces.ErrConfiguration, s.interval)
	}

	c := cron.New()
	if _, err := c.AddFunc(s.Schedule(), func() { s.runScheduledScan(ctx) }); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.logger.Info().
		Str("schedule", s.Schedule()).
		Msg("Starting continuous monitoring")

	s.runScheduledScan(ctx)
	c.Start()

	<-ctx.Done()

	// Stop returns a context that is done once running jobs complete
	stopCtx := c.Stop()
	<-stopCtx.Done()

	s.mu.Lock()
	runs, skipped := s.runs, s.skipped
	s.mu.Unlock()

	s.logger.Info().
		Int("runs", runs).
		Int("skipped", skipped).
		Msg("Monitoring stopped")
	return nil
}

// runScheduledScan runs one cycle unless one is already in flight
func (s *Service) runScheduledScan(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduled scan")
			s.finish(nil, fmt.Errorf("panic: %v", r))
		}
	}()

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.isProcessing {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous scan still running, skipping this cycle")
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	result, err := s.scanner.RunScan(ctx)
	s.finish(result, err)

	switch {
	case err == nil:
	case errors.Is(err, interfaces.ErrAllSourcesFailed):
		s.logger.Error().Err(err).Msg("Scan produced no data, retrying next cycle")
	default:
		s.logger.Error().Err(err).Msg("Scan failed")
	}
}

func (s *Service) finish(result *models.ScanResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isProcessing = false
	s.runs++
	s.lastResult = result
	s.lastError = err
}

// Stats reports completed and skipped runs
func (s *Service) Stats() (runs, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.skipped
}

// LastResult returns the most recent scan outcome
func (s *Service) LastResult() (*models.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult, s.lastError
}
