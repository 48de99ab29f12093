package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"resolution-dashboard/models"
)

// Update is published to subscribers whenever a watched process changes.
type Update struct {
	Process       models.Process `json:"process"`
	AwaitingInput bool           `json:"awaiting_input"`
	Final         bool           `json:"final"`
}

// ProcessGetter fetches the current state of a process.
type ProcessGetter interface {
	Get(ctx context.Context, id string) (*models.Process, error)
}

// History persists command runs and the logs of ended processes.
type History interface {
	RecordStart(command, pid string, at time.Time) error
	RecordStatus(pid string, status models.ProcessStatus, logs []models.LogEntry) error
	Logs(pid string) ([]models.LogEntry, bool, error)
}

// Monitor polls one process at a time. Watching a new process cancels the
// poll of the previous one.
type Monitor struct {
	getter   ProcessGetter
	history  History
	interval time.Duration
	log      zerolog.Logger

	base     context.Context
	closeAll context.CancelFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	current string
	last    *models.Process
	subs    map[string]map[int]chan Update
	nextSub int
	done    chan struct{}
}

// NewMonitor creates a monitor. history may be nil.
func NewMonitor(getter ProcessGetter, history History, interval time.Duration, log zerolog.Logger) *Monitor {
	base, cancel := context.WithCancel(context.Background())
	return &Monitor{
		getter:   getter,
		history:  history,
		interval: interval,
		log:      log.With().Str("component", "monitor").Logger(),
		base:     base,
		closeAll: cancel,
		subs:     map[string]map[int]chan Update{},
	}
}

// Watch starts polling pid, replacing any running poll.
func (m *Monitor) Watch(pid string) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.base)
	m.cancel = cancel
	m.current = pid
	m.last = nil
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	m.log.Debug().Str("process_id", pid).Msg("watching process")
	go func() {
		defer close(done)
		m.poll(ctx, pid)
	}()
}

// Current returns the watched process id and its last observed state.
func (m *Monitor) Current() (string, *models.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return m.current, nil
	}
	p := *m.last
	return m.current, &p
}

// Subscribe registers for updates of pid. The returned function
// unsubscribes and closes the channel.
func (m *Monitor) Subscribe(pid string) (<-chan Update, func()) {
	ch := make(chan Update, 16)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	if m.subs[pid] == nil {
		m.subs[pid] = map[int]chan Update{}
	}
	m.subs[pid][id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[pid], id)
			if len(m.subs[pid]) == 0 {
				delete(m.subs, pid)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Close stops polling.
func (m *Monitor) Close() {
	m.closeAll()
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Monitor) poll(ctx context.Context, pid string) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if m.tick(ctx, pid) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick fetches the process once. It reports true when polling should stop.
func (m *Monitor) tick(ctx context.Context, pid string) bool {
	p, err := m.getter.Get(ctx, pid)
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, ErrProcessNotFound) {
		if cached := m.cachedProcess(pid); cached != nil {
			m.publish(pid, *cached, true)
		} else {
			m.log.Warn().Str("process_id", pid).Msg("process disappeared")
		}
		return true
	}
	if err != nil {
		m.log.Warn().Err(err).Str("process_id", pid).Msg("poll failed")
		return false
	}

	final := p.Status.Terminal()
	if final && len(p.Logs) == 0 {
		// p becomes visible through m.last below
		p.Logs = m.savedLogs(pid)
	}

	m.mu.Lock()
	if m.current != pid {
		m.mu.Unlock()
		return true
	}
	prev := m.last
	if prev != nil && !prev.Status.CanTransition(p.Status) {
		m.mu.Unlock()
		m.log.Warn().Str("process_id", pid).
			Str("from", string(prev.Status)).Str("to", string(p.Status)).
			Msg("ignoring invalid status transition")
		return prev.Status.Terminal()
	}
	changed := prev == nil || prev.Status != p.Status || len(prev.Logs) != len(p.Logs)
	m.last = p
	m.mu.Unlock()

	if final {
		m.finish(pid, p)
	}
	if changed || final {
		m.publish(pid, *p, final)
	}
	return final
}

// finish records the final state of p. p must not be modified.
func (m *Monitor) finish(pid string, p *models.Process) {
	if m.history == nil {
		return
	}
	if err := m.history.RecordStatus(pid, p.Status, p.Logs); err != nil {
		m.log.Warn().Err(err).Str("process_id", pid).Msg("failed to record process status")
	}
}

func (m *Monitor) savedLogs(pid string) []models.LogEntry {
	if m.history == nil {
		return nil
	}
	logs, ok, err := m.history.Logs(pid)
	if err != nil || !ok {
		return nil
	}
	return logs
}

func (m *Monitor) cachedProcess(pid string) *models.Process {
	if m.history == nil {
		return nil
	}
	logs, ok, err := m.history.Logs(pid)
	if err != nil || !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := models.Process{ID: pid, Status: models.StatusCompleted, Logs: logs}
	if m.last != nil {
		p.Command = m.last.Command
		if m.last.Status.Terminal() {
			p.Status = m.last.Status
		}
	}
	return &p
}

func (m *Monitor) publish(pid string, p models.Process, final bool) {
	u := Update{Process: p, AwaitingInput: !final && AwaitingInput(p.LastLine()), Final: final}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[pid] {
		select {
		case ch <- u:
		default:
			m.log.Debug().Str("process_id", pid).Msg("subscriber lagging, update dropped")
		}
	}
}
