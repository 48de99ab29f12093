package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"resolution-dashboard/models"
)

// Service ties the API client, the monitor and the command history
// together.
type Service struct {
	client  *Client
	monitor *Monitor
	history History
	log     zerolog.Logger
}

func NewService(client *Client, monitor *Monitor, history History, log zerolog.Logger) *Service {
	return &Service{
		client:  client,
		monitor: monitor,
		history: history,
		log:     log.With().Str("component", "runner").Logger(),
	}
}

func (s *Service) Monitor() *Monitor { return s.monitor }

// Start launches command, records it in the history and watches it.
func (s *Service) Start(ctx context.Context, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("command is empty")
	}
	pid, err := s.client.Start(ctx, command)
	if err != nil {
		return "", err
	}
	if s.history != nil {
		if err := s.history.RecordStart(command, pid, time.Now()); err != nil {
			s.log.Warn().Err(err).Str("process_id", pid).Msg("failed to record command")
		}
	}
	s.monitor.Watch(pid)
	return pid, nil
}

// Process returns a process, falling back to the cached logs when the API
// no longer knows it or returns an ended process without logs.
func (s *Service) Process(ctx context.Context, pid string) (*models.Process, error) {
	p, err := s.client.Get(ctx, pid)
	switch {
	case errors.Is(err, ErrProcessNotFound):
		if logs, ok := s.cachedLogs(pid); ok {
			return &models.Process{ID: pid, Status: models.StatusCompleted, Logs: logs}, nil
		}
		return nil, err
	case err != nil:
		return nil, err
	}
	if p.Status.Terminal() && len(p.Logs) == 0 {
		if logs, ok := s.cachedLogs(pid); ok {
			p.Logs = logs
		}
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]models.Process, error) {
	return s.client.List(ctx)
}

func (s *Service) Stop(ctx context.Context, pid string) error {
	return s.client.Stop(ctx, pid)
}

func (s *Service) SendInput(ctx context.Context, pid, input string) error {
	return s.client.SendInput(ctx, pid, input)
}

func (s *Service) cachedLogs(pid string) ([]models.LogEntry, bool) {
	if s.history == nil {
		return nil, false
	}
	logs, ok, err := s.history.Logs(pid)
	if err != nil {
		s.log.Warn().Err(err).Str("process_id", pid).Msg("failed to read cached logs")
		return nil, false
	}
	return logs, ok
}
