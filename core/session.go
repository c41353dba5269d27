package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"pkt.systems/noctrace/internal/logx"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

// Session is one investigation context. It owns the transcript, the run
// generation counter and the cancellation of the current run. Sinks are
// notified while the session lock is held and must not call back into it.
type Session struct {
	cfg     schema.SessionConfig
	orch    Orchestrator
	history HistoryStore
	sink    EventSink
	viz     *VisualizationCache
	logger  pslog.Logger
	now     func() time.Time

	mu         sync.Mutex
	id         schema.SessionID
	generation uint64
	state      schema.RunState
	run        *runState
	transcript *transcript
	thinking   *schema.ThinkingIndicator
	lastErr    *schema.ErrorInfo
	alerts     *alertHistory
}

// runState tracks one generation of the session.
type runState struct {
	generation uint64
	cancel     context.CancelFunc
	started    time.Time
	done       chan struct{}
	// ended is set once run_complete, message or error arrived.
	ended  bool
	events int
}

// NewSession constructs a session in the idle state.
func NewSession(cfg schema.SessionConfig, deps SessionDeps) (*Session, error) {
	normalized, err := schema.NormalizeSessionConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	sessionID := deps.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	} else if err := schema.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	viz := deps.Visualizations
	if viz == nil {
		viz = NewVisualizationCache(pslog.ContextWithLogger(context.Background(), logger), cfg.VisualizationTimeout)
	}
	return &Session{
		cfg:        cfg,
		orch:       deps.Orchestrator,
		history:    deps.History,
		sink:       deps.EventSink,
		viz:        viz,
		logger:     logger,
		now:        clock,
		id:         sessionID,
		state:      schema.RunIdle,
		transcript: newTranscript(),
		alerts:     newAlertHistory(0),
	}, nil
}

// ID returns the current session id.
func (s *Session) ID() schema.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Start begins a new run for alert. A live run is superseded: it is
// cancelled and none of its later events reach the transcript.
func (s *Session) Start(ctx context.Context, alert string) (uint64, error) {
	if s.orch == nil {
		return 0, schema.ErrOrchestratorUnavailable
	}
	if ctx == nil {
		return 0, errors.New("missing context")
	}
	alert, err := schema.NormalizeAlert(alert)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	prev := s.run
	prevState := s.state
	if prev != nil {
		prev.cancel()
	}
	s.generation++
	generation := s.generation
	sessionID := s.id
	started := s.now()
	user, assistant := s.transcript.Begin(alert, started)
	s.state = schema.RunStarting
	s.thinking = nil
	s.lastErr = nil
	s.alerts.Append(alert)

	log := logx.WithSession(s.loggerFor(ctx), sessionID).With("generation", generation)
	runCtx, cancel := detachRunContext(logx.ContextWithRunLogger(ctx, log, sessionID, generation))
	run := &runState{
		generation: generation,
		cancel:     cancel,
		started:    started,
		done:       make(chan struct{}),
	}
	s.run = run
	s.emitMessageLocked(user)
	s.emitMessageLocked(assistant)
	s.emitStateLocked()
	s.mu.Unlock()

	if prev != nil && prevState.Live() {
		log.Info("session run superseded", "previous_generation", prev.generation)
	}
	log.Info("session run start", "alert_len", len(alert), "scenario", s.cfg.Scenario)
	req := schema.StartRunRequest{AlertText: alert, Scenario: s.cfg.Scenario, SessionID: sessionID}
	go s.consume(runCtx, run, req)
	return generation, nil
}

// Retry starts a new run with the most recent alert.
func (s *Session) Retry(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	alert := s.alerts.Last()
	s.mu.Unlock()
	if alert == "" {
		return 0, schema.ErrNoRun
	}
	return s.Start(ctx, alert)
}

// Cancel stops the live run. The transcript keeps whatever the run produced
// so far. Cancelling a finished run is a no-op.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	run := s.run
	if run == nil {
		s.mu.Unlock()
		return schema.ErrNoRun
	}
	if !s.state.Live() {
		s.mu.Unlock()
		return nil
	}
	run.cancel()
	s.state = schema.RunCancelled
	s.transcript.Detach()
	if s.thinking != nil {
		s.thinking = nil
		s.emitThinkingLocked()
	}
	s.emitStateLocked()
	generation := run.generation
	steps := 0
	if last := s.transcript.LastAssistant(); last != nil {
		steps = last.CompletedSteps()
	}
	sessionID := s.id
	s.mu.Unlock()
	logx.WithSession(s.loggerFor(ctx), sessionID).Info("session run cancelled", "generation", generation, "completed_steps", steps)
	return nil
}

// Wait blocks until the consumer of the current run exited or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() schema.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := schema.SessionSnapshot{
		SessionID:    s.id,
		Generation:   s.generation,
		State:        s.state,
		AlertText:    s.alerts.Last(),
		Messages:     s.transcript.Messages(),
		RecentAlerts: s.alerts.Entries(),
	}
	if s.thinking != nil {
		thinking := *s.thinking
		snap.Thinking = &thinking
	}
	if s.lastErr != nil {
		info := *s.lastErr
		snap.Error = &info
	}
	return snap
}

// SaveHistory hands the transcript to the history store.
func (s *Session) SaveHistory(ctx context.Context) (schema.HistoryID, error) {
	if s.history == nil {
		return "", schema.ErrHistoryUnavailable
	}
	s.mu.Lock()
	if s.state.Live() {
		s.mu.Unlock()
		return "", schema.ErrRunActive
	}
	if s.transcript.Len() == 0 {
		s.mu.Unlock()
		return "", schema.ErrNoRun
	}
	messages := s.transcript.Messages()
	alert := firstUserText(messages)
	record := schema.HistoryRecord{
		SessionID: s.id,
		Title:     schema.TitleFromAlert(alert, s.cfg.HistoryTitleMax),
		AlertText: alert,
		SavedAt:   s.now(),
		Messages:  messages,
	}
	s.mu.Unlock()

	log := logx.WithSession(s.loggerFor(ctx), record.SessionID)
	id, err := s.history.SaveHistory(ctx, record)
	if err != nil {
		log.Warn("session history save failed", "err", err)
		return "", err
	}
	log.Info("session history saved", "history_id", id, "messages", len(messages))
	return id, nil
}

// DeleteHistory removes a saved transcript.
func (s *Session) DeleteHistory(ctx context.Context, id schema.HistoryID) error {
	if s.history == nil {
		return schema.ErrHistoryUnavailable
	}
	if strings.TrimSpace(string(id)) == "" {
		return schema.ErrInvalidHistoryID
	}
	log := logx.WithSession(s.loggerFor(ctx), s.ID())
	if err := s.history.DeleteHistory(ctx, id); err != nil {
		log.Warn("session history delete failed", "history_id", id, "err", err)
		return err
	}
	log.Info("session history deleted", "history_id", id)
	return nil
}

// Visualization returns the visualization of step, looked up in the latest run
// that has it, fetching it on first use.
func (s *Session) Visualization(ctx context.Context, step int) (schema.VisualizationEntry, error) {
	key, fetcher, err := s.visualizationFetch(step)
	if err != nil {
		return schema.VisualizationEntry{}, err
	}
	return s.viz.Request(ctx, key, fetcher)
}

// RetryVisualization discards the cached visualization of step and fetches it again.
func (s *Session) RetryVisualization(ctx context.Context, step int) (schema.VisualizationEntry, error) {
	key, fetcher, err := s.visualizationFetch(step)
	if err != nil {
		return schema.VisualizationEntry{}, err
	}
	return s.viz.Retry(ctx, key, fetcher)
}

func (s *Session) visualizationFetch(step int) (string, VisualizationFetcher, error) {
	if s.orch == nil {
		return "", nil, schema.ErrOrchestratorUnavailable
	}
	s.mu.Lock()
	call, ok := s.transcript.ToolCall(step)
	sessionID := s.id
	s.mu.Unlock()
	if !ok {
		return "", nil, schema.ErrStepNotFound
	}
	key := schema.VisualizationKey{SessionID: sessionID, Step: step}.String()
	req := schema.VisualizationRequest{SessionID: sessionID, Step: step, Agent: call.Agent, Query: call.Query}
	orch := s.orch
	return key, func(ctx context.Context) (json.RawMessage, error) {
		return orch.FetchVisualization(ctx, req)
	}, nil
}

func (s *Session) consume(ctx context.Context, run *runState, req schema.StartRunRequest) {
	log := pslog.Ctx(ctx)
	defer close(run.done)
	defer run.cancel()

	stream, err := s.orch.StartRun(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("session run open aborted", "err", err)
			return
		}
		s.fail(log, run, NewRunError(RunErrorOpen, err))
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug("session stream close failed", "err", err)
		}
	}()
	log.Debug("session stream open")

	for {
		evt, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("session stream stopped", "err", ctx.Err())
				return
			}
			if errors.Is(err, io.EOF) {
				if s.ended(run) {
					log.Info("session run finished", "events", s.eventCount(run), "duration_ms", s.now().Sub(run.started).Milliseconds())
					return
				}
				s.fail(log, run, NewRunError(RunErrorEnded, schema.ErrStreamEnded))
				return
			}
			s.fail(log, run, NewRunError(RunErrorRead, err))
			return
		}
		s.apply(log, run.generation, evt)
	}
}

// apply folds evt into the session if generation is still current.
func (s *Session) apply(log pslog.Logger, generation uint64, evt schema.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.run
	if run == nil || generation != s.generation || run.generation != generation {
		log.Debug("session event discarded", "name", evt.Name(), "reason", "stale generation", "current", s.generation)
		return false
	}
	switch s.state {
	case schema.RunCancelled:
		log.Debug("session event discarded", "name", evt.Name(), "reason", "cancelled")
		return false
	case schema.RunCompleted, schema.RunErrored:
		if _, ok := evt.(schema.RunCompleteEvent); !ok {
			log.Debug("session event discarded", "name", evt.Name(), "reason", "run ended")
			return false
		}
	}
	run.events++

	if s.thinking != nil {
		s.thinking = nil
		if _, ok := evt.(schema.StepThinkingEvent); !ok {
			s.emitThinkingLocked()
		}
	}
	if s.state == schema.RunStarting {
		if _, ok := evt.(schema.RunStartEvent); !ok {
			log.Debug("session run activated without run_start", "name", evt.Name())
		}
		s.state = schema.RunActive
		s.emitStateLocked()
	}

	open := s.transcript.Open()
	now := s.now()
	switch e := evt.(type) {
	case schema.RunStartEvent:
		if e.SessionID != "" && e.SessionID != s.id {
			if err := schema.ValidateSessionID(e.SessionID); err != nil {
				log.Warn("session id from orchestrator rejected", "session_id", e.SessionID, "err", err)
			} else {
				log.Info("session id assigned", "session_id", e.SessionID)
				s.id = e.SessionID
			}
		}
		return true
	case schema.StepThinkingEvent:
		s.thinking = &schema.ThinkingIndicator{Agent: e.Agent, Status: e.Status}
		s.emitThinkingLocked()
		return true
	case schema.RunCompleteEvent:
		run.ended = true
		result := s.transcript.Apply(evt, now, now.Sub(run.started))
		if result.Changed && open != nil {
			s.emitMessageLocked(open)
		}
		if s.state == schema.RunActive {
			s.state = schema.RunCompleted
			s.emitStateLocked()
		}
		return true
	}

	result := s.transcript.Apply(evt, now, now.Sub(run.started))
	if !result.Changed {
		stepLog := log
		if step := eventStep(evt); step > 0 {
			stepLog = logx.WithStep(log, step, "")
		}
		stepLog.Debug("session event ignored", "name", evt.Name(), "reason", result.Ignored)
		return false
	}
	if open != nil {
		s.emitMessageLocked(open)
	}
	switch e := evt.(type) {
	case schema.StepCompleteEvent:
		logx.WithStep(log, e.Step, e.Agent).Debug("session step complete", "error", e.Error, "is_action", e.IsAction)
	case schema.MessageEvent:
		run.ended = true
		s.state = schema.RunCompleted
		s.emitStateLocked()
		log.Info("session diagnosis received", "steps", len(open.ToolCalls), "elapsed", open.RunMeta.ElapsedLabel)
	case schema.ErrorEvent:
		run.ended = true
		info := Classify(e.Message)
		s.lastErr = &info
		s.state = schema.RunErrored
		s.emitStateLocked()
		log.Warn("session run error", "message", e.Message, "kind", info.Kind)
	}
	return true
}

// fail moves a live run of the current generation to errored.
func (s *Session) fail(log pslog.Logger, run *runState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != run || run.generation != s.generation || !s.state.Live() {
		log.Debug("session failure discarded", "err", err)
		return
	}
	info := ClassifyError(err)
	open := s.transcript.Open()
	s.transcript.Apply(schema.ErrorEvent{Message: err.Error()}, s.now(), s.now().Sub(run.started))
	if open != nil {
		s.emitMessageLocked(open)
	}
	if s.thinking != nil {
		s.thinking = nil
		s.emitThinkingLocked()
	}
	s.lastErr = &info
	s.state = schema.RunErrored
	s.emitStateLocked()
	log.Warn("session run failed", "err", err, "kind", info.Kind)
}

func (s *Session) ended(run *runState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return run.ended
}

func (s *Session) eventCount(run *runState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return run.events
}

func (s *Session) loggerFor(ctx context.Context) pslog.Logger {
	if ctx != nil {
		if log := pslog.Ctx(ctx); log != nil {
			return log
		}
	}
	return s.logger
}

func (s *Session) emitMessageLocked(msg schema.Message) {
	if s.sink == nil {
		return
	}
	s.sink.OnSessionEvent(schema.SessionEvent{
		Type:       schema.SessionEventMessage,
		SessionID:  s.id,
		Generation: s.generation,
		State:      s.state,
		Message:    msg.CloneMessage(),
	})
}

func (s *Session) emitStateLocked() {
	if s.sink == nil {
		return
	}
	event := schema.SessionEvent{
		Type:       schema.SessionEventState,
		SessionID:  s.id,
		Generation: s.generation,
		State:      s.state,
	}
	if s.lastErr != nil {
		info := *s.lastErr
		event.Error = &info
	}
	s.sink.OnSessionEvent(event)
}

func (s *Session) emitThinkingLocked() {
	if s.sink == nil {
		return
	}
	event := schema.SessionEvent{
		Type:       schema.SessionEventThinking,
		SessionID:  s.id,
		Generation: s.generation,
		State:      s.state,
	}
	if s.thinking != nil {
		thinking := *s.thinking
		event.Thinking = &thinking
	}
	s.sink.OnSessionEvent(event)
}

func eventStep(evt schema.Event) int {
	switch e := evt.(type) {
	case schema.StepStartEvent:
		return e.Step
	case schema.StepCompleteEvent:
		return e.Step
	case schema.SubStepEvent:
		return e.Step
	default:
		return 0
	}
}

func firstUserText(messages []schema.Message) string {
	for _, msg := range messages {
		if user, ok := msg.(*schema.UserMessage); ok {
			return user.Text
		}
	}
	return ""
}

func detachRunContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.Background()
	if ctx != nil {
		if logger := pslog.Ctx(ctx); logger != nil {
			base = logx.CopyContextFields(pslog.ContextWithLogger(base, logger), ctx)
		}
	}
	return context.WithCancel(base)
}
