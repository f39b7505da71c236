package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"kb-assistant/internal/constant"
	"kb-assistant/internal/metrics"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/store"
)

const (
	DefaultProgressInterval = 200 * time.Millisecond

	logModule = "WORKFLOW"
)

// ErrSuperseded is returned when the workflow was reset while a backend call was in flight.
// The late result has been dropped.
var ErrSuperseded = errors.New("workflow was reset while the call was in flight")

// Backend is the part of the gateway the workflow needs
type Backend interface {
	Upload(ctx context.Context, files []gateway.File) (*gateway.UploadResponse, error)
	CreateKnowledgeBase(ctx context.Context, req gateway.CreateKnowledgeBaseRequest) (*gateway.CreateKnowledgeBaseResponse, error)
}

type Options struct {
	SessionID        string
	Config           Config
	Backend          Backend
	Publisher        events.Publisher
	Logger           logger.ILogger
	OnCommit         func(kb store.KnowledgeBase)
	ProgressInterval time.Duration
}

// Workflow drives the reducer against the backend. Every instance has a lifetime
// context and a generation; Reset cancels the former and bumps the latter so a
// late backend response can never land in a newer workflow.
type Workflow struct {
	sessionID        string
	backend          Backend
	publisher        events.Publisher
	logger           logger.ILogger
	onCommit         func(kb store.KnowledgeBase)
	progressInterval time.Duration

	mu         sync.Mutex
	state      State
	version    uint64 // bumped on every state change
	generation uint64
	lifetime   context.Context
	cancel     context.CancelFunc

	// WORKFLOW_UPDATED events leave in version order; an older state is never
	// published after a newer one.
	publishMu sync.Mutex
	published uint64
}

func New(opts Options) *Workflow {
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if len(opts.Config.AcceptedTypes) == 0 && opts.Config.Defaults == (Params{}) {
		opts.Config = DefaultConfig()
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Workflow{
		sessionID:        opts.SessionID,
		backend:          opts.Backend,
		publisher:        opts.Publisher,
		logger:           opts.Logger,
		onCommit:         opts.OnCommit,
		progressInterval: opts.ProgressInterval,
		state:            Initial(opts.Config),
		lifetime:         lifetime,
		cancel:           cancel,
	}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) SelectFile(file gateway.File) (State, error) {
	return w.dispatch(FileSelected{File: file})
}

func (w *Workflow) EditParams(params Params) (State, error) {
	return w.dispatch(ParamsEdited{Params: params})
}

func (w *Workflow) Step(field Field, direction int) (State, error) {
	return w.dispatch(Stepped{Field: field, Direction: direction})
}

// Next uploads the selected file and blocks until the backend answers.
func (w *Workflow) Next(ctx context.Context) (State, error) {
	c, err := w.begin(ctx, UploadRequested{})
	if err != nil {
		return w.State(), err
	}
	return w.runUpload(c)
}

// NextAsync validates the transition synchronously and uploads in the background.
// ctx should not be request scoped.
func (w *Workflow) NextAsync(ctx context.Context) (State, error) {
	c, err := w.begin(ctx, UploadRequested{})
	if err != nil {
		return w.State(), err
	}
	go func() {
		_, _ = w.runUpload(c)
	}()
	return c.state, nil
}

// Save creates the knowledge base and blocks until the backend answers.
func (w *Workflow) Save(ctx context.Context) (State, error) {
	c, err := w.begin(ctx, CreateRequested{})
	if err != nil {
		return w.State(), err
	}
	return w.runCreate(c)
}

func (w *Workflow) SaveAsync(ctx context.Context) (State, error) {
	c, err := w.begin(ctx, CreateRequested{})
	if err != nil {
		return w.State(), err
	}
	go func() {
		_, _ = w.runCreate(c)
	}()
	return c.state, nil
}

// Confirm leaves the result step. A successful result is committed to the owner
// and returned; a failed one is discarded and nil is returned.
func (w *Workflow) Confirm() (*store.KnowledgeBase, error) {
	w.mu.Lock()
	kb, committed := w.state.KnowledgeBase()
	next, err := Reduce(w.state, Confirmed{})
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	v := w.commit(next)
	w.mu.Unlock()

	w.publishState(next, v)
	if !committed {
		w.logger.Info(logModule, "Failed result discarded", map[string]interface{}{"session_id": w.sessionID})
		return nil, nil
	}

	if w.onCommit != nil {
		w.onCommit(kb)
	}
	w.publish(events.NewSessionEvent(events.TypeKnowledgeBaseCreated, w.sessionID, map[string]interface{}{
		"name":         kb.Name,
		"total_chunks": *kb.TotalChunks,
	}))
	w.logger.Info(logModule, "Knowledge base committed", map[string]interface{}{
		"session_id": w.sessionID,
		"name":       kb.Name,
	})
	return &kb, nil
}

// Reset abandons whatever the workflow was doing and returns to file selection
func (w *Workflow) Reset() State {
	w.mu.Lock()
	w.cancel()
	w.generation++
	w.lifetime, w.cancel = context.WithCancel(context.Background())
	s, _ := Reduce(w.state, Reset{})
	v := w.commit(s)
	w.mu.Unlock()

	w.publishState(s, v)
	return s
}

// Close cancels in-flight calls for good. Later calls fail with a cancelled context.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancel()
	w.generation++
}

func (w *Workflow) dispatch(e Event) (State, error) {
	w.mu.Lock()
	next, err := Reduce(w.state, e)
	if err != nil {
		s := w.state
		w.mu.Unlock()
		return s, err
	}
	v := w.commit(next)
	w.mu.Unlock()

	w.publishState(next, v)
	return next, nil
}

// commit installs next as the current state. Callers hold w.mu.
func (w *Workflow) commit(next State) uint64 {
	w.state = next
	w.version++
	return w.version
}

type call struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	state      State
}

// begin applies the request event and derives the call context from both the
// workflow lifetime and the caller.
func (w *Workflow) begin(parent context.Context, e Event) (*call, error) {
	w.mu.Lock()
	next, err := Reduce(w.state, e)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	v := w.commit(next)

	ctx, cancel := context.WithCancel(w.lifetime)
	stop := context.AfterFunc(parent, cancel)
	c := &call{
		ctx: ctx,
		cancel: func() {
			stop()
			cancel()
		},
		generation: w.generation,
		state:      next,
	}
	w.mu.Unlock()

	w.publishState(next, v)
	return c, nil
}

// finish applies the outcome event unless the workflow moved on since begin
func (w *Workflow) finish(c *call, e Event) (State, error) {
	c.cancel()

	w.mu.Lock()
	if c.generation != w.generation {
		s := w.state
		w.mu.Unlock()
		w.logger.Warn(logModule, "Dropped stale backend result", map[string]interface{}{
			"session_id": w.sessionID,
			"generation": c.generation,
		})
		return s, ErrSuperseded
	}
	next, err := Reduce(w.state, e)
	if err != nil {
		s := w.state
		w.mu.Unlock()
		return s, err
	}
	v := w.commit(next)
	w.mu.Unlock()

	w.publishState(next, v)
	return next, nil
}

func (w *Workflow) runUpload(c *call) (State, error) {
	file := *c.state.File
	w.logger.Info(logModule, "Uploading document", map[string]interface{}{
		"session_id": w.sessionID,
		"file":       file.Name,
		"size":       len(file.Content),
	})

	resp, err := w.backend.Upload(c.ctx, []gateway.File{file})
	if err != nil {
		s, ferr := w.finish(c, UploadFailed{Message: err.Error()})
		if ferr != nil {
			return s, ferr
		}
		metrics.WorkflowResults.WithLabelValues("upload_failed").Inc()
		w.logger.Error(logModule, "Upload failed", map[string]interface{}{"session_id": w.sessionID, "error": err.Error()})
		w.notify(events.LevelError, constant.UploadFailedNotice)
		return s, err
	}

	s, err := w.finish(c, UploadSucceeded{Filenames: resp.Filenames, Message: resp.Message})
	if err != nil {
		return s, err
	}
	w.notify(events.LevelSuccess, orDefault(resp.Message, constant.UploadSucceededNotice))
	return s, nil
}

func (w *Workflow) runCreate(c *call) (State, error) {
	params := c.state.Params
	req := gateway.CreateKnowledgeBaseRequest{
		KBName:        params.Name,
		ChunkSize:     params.ChunkSize,
		ChunkOverlap:  params.ChunkOverlap,
		FileFilenames: append([]string{}, c.state.StoredFilenames...),
	}
	w.logger.Info(logModule, "Creating knowledge base", map[string]interface{}{
		"session_id":    w.sessionID,
		"name":          req.KBName,
		"chunk_size":    req.ChunkSize,
		"chunk_overlap": req.ChunkOverlap,
	})

	stop := make(chan struct{})
	go w.runProgress(c.generation, stop)
	resp, err := w.backend.CreateKnowledgeBase(c.ctx, req)
	close(stop)

	if err != nil {
		s, ferr := w.finish(c, CreateFailed{Message: err.Error()})
		if ferr != nil {
			return s, ferr
		}
		metrics.WorkflowResults.WithLabelValues("create_failed").Inc()
		w.logger.Error(logModule, "Knowledge base creation failed", map[string]interface{}{"session_id": w.sessionID, "error": err.Error()})
		w.notify(events.LevelError, constant.CreateFailedNotice)
		return s, err
	}

	s, err := w.finish(c, CreateSucceeded{TotalChunks: resp.TotalChunks, Message: resp.Message})
	if err != nil {
		return s, err
	}
	metrics.WorkflowResults.WithLabelValues("created").Inc()
	w.notify(events.LevelSuccess, orDefault(resp.Message, constant.CreateSucceededNotice))
	return s, nil
}

// runProgress is purely cosmetic. It never drives a transition and stops at the cap,
// when the call resolves, or when the workflow moves on.
func (w *Workflow) runProgress(generation uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(w.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.generation != generation || w.state.Step != StepCreatingIndex {
				w.mu.Unlock()
				return
			}
			next, err := Reduce(w.state, ProgressTicked{})
			if err != nil {
				w.mu.Unlock()
				return
			}
			v := w.commit(next)
			w.mu.Unlock()

			w.publishState(next, v)
			if next.Progress >= ProgressCap {
				return
			}
		}
	}
}

// publishState drops s when a newer state has already gone out.
func (w *Workflow) publishState(s State, version uint64) {
	w.publishMu.Lock()
	defer w.publishMu.Unlock()
	if version <= w.published {
		return
	}
	w.published = version
	w.publish(events.NewSessionEvent(events.TypeWorkflowUpdated, w.sessionID, map[string]interface{}{
		"step":          s.Step.String(),
		"progress":      s.Progress,
		"is_success":    s.Success,
		"error_message": s.ErrorMessage,
	}))
}

func (w *Workflow) notify(level events.Level, message string) {
	w.publish(events.NewNotification(w.sessionID, level, message))
}

func (w *Workflow) publish(e events.Event) {
	if err := w.publisher.Publish(context.Background(), e); err != nil {
		w.logger.Warn(logModule, "Failed to publish event", map[string]interface{}{
			"type":  e.EventType(),
			"error": err.Error(),
		})
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
