package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/glabrego/tvguide-cli/internal/progress"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

type RefreshKind string

const (
	RefreshPlaylist RefreshKind = "m3u"
	RefreshGuide    RefreshKind = "epg"
	RefreshReset    RefreshKind = "reset"
)

func (k RefreshKind) Valid() bool {
	switch k {
	case RefreshPlaylist, RefreshGuide, RefreshReset:
		return true
	}
	return false
}

func (k RefreshKind) Title() string {
	switch k {
	case RefreshPlaylist:
		return "Playlist"
	case RefreshGuide:
		return "Guide"
	case RefreshReset:
		return "Reset"
	}
	return string(k)
}

// RunStatus is the lifecycle of one refresh run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

func (s RunStatus) IsActive() bool {
	return s == RunPending || s == RunRunning
}

func (s RunStatus) IsFinished() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run is a snapshot of a refresh run.
type Run struct {
	ID         string
	Kind       RefreshKind
	Status     RunStatus
	Current    float64
	Total      float64
	Message    string
	Err        error
	Dropped    int
	Implicit   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Fraction is the completed share in [0, 1].
func (r Run) Fraction() float64 {
	if r.Status == RunCompleted {
		return 1
	}
	return progress.Event{Kind: progress.KindProgress, Current: r.Current, Total: r.Total}.Fraction()
}

type runEntry struct {
	run    Run
	cancel context.CancelFunc
	done   chan struct{}
}

// RefreshRunner runs refresh streams in the background. Each run owns its
// cancel func, so cancelling one never touches another. At most one run per
// kind is active; different kinds run concurrently.
type RefreshRunner struct {
	opener   Opener
	recorder Recorder
	log      pslog.Logger
	now      func() time.Time

	mu     sync.Mutex
	runs   map[string]*runEntry
	active map[RefreshKind]string
}

// Recorder keeps the time of the last completed run per kind.
type Recorder interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

func NewRefreshRunner(opener Opener, recorder Recorder, log pslog.Logger) *RefreshRunner {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &RefreshRunner{
		opener:   opener,
		recorder: recorder,
		log:      log,
		now:      time.Now,
		runs:     make(map[string]*runEntry),
		active:   make(map[RefreshKind]string),
	}
}

// Start begins a run of kind. If one is already active for that kind, its
// snapshot is returned with started=false. onUpdate, when set, receives a
// snapshot after every event and once more when the run finishes; it is
// called from the run's goroutine.
func (r *RefreshRunner) Start(ctx context.Context, kind RefreshKind, req tvapi.RefreshRequest, onUpdate func(Run)) (Run, bool, error) {
	if !kind.Valid() {
		return Run{}, false, fmt.Errorf("unknown refresh kind %q", kind)
	}

	r.mu.Lock()
	if id, ok := r.active[kind]; ok {
		run := r.runs[id].run
		r.mu.Unlock()
		return run, false, nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	entry := &runEntry{
		run: Run{
			ID:        uuid.NewString(),
			Kind:      kind,
			Status:    RunPending,
			StartedAt: r.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.runs[entry.run.ID] = entry
	r.active[kind] = entry.run.ID
	snapshot := entry.run
	r.mu.Unlock()

	r.log.Info("refresh started", "kind", string(kind), "run", snapshot.ID, "force", req.Force)
	go r.execute(runCtx, entry, req, onUpdate)
	return snapshot, true, nil
}

func (r *RefreshRunner) execute(ctx context.Context, entry *runEntry, req tvapi.RefreshRequest, onUpdate func(Run)) {
	defer close(entry.done)
	defer entry.cancel()

	notify := func(run Run) {
		if onUpdate != nil {
			onUpdate(run)
		}
	}

	body, err := r.open(ctx, entry.run.Kind, req)
	if err != nil {
		notify(r.finish(ctx, entry, err, false))
		return
	}
	defer body.Close()

	notify(r.update(entry, func(run *Run) { run.Status = RunRunning }))

	log := r.log.With("kind", string(entry.run.Kind), "run", entry.run.ID)
	completed := false
	decoder := progress.NewDecoder(log)
	err = decoder.Read(ctx, body, func(ev progress.Event) {
		snap := r.update(entry, func(run *Run) {
			switch ev.Kind {
			case progress.KindProgress:
				run.Current, run.Total = ev.Current, ev.Total
				if ev.Message != "" {
					run.Message = ev.Message
				}
			case progress.KindMessage:
				run.Message = ev.Message
			case progress.KindComplete:
				completed = true
				if ev.Message != "" {
					run.Message = ev.Message
				}
			}
		})
		notify(snap)
	})
	r.update(entry, func(run *Run) { run.Dropped = decoder.Dropped() })
	notify(r.finish(ctx, entry, err, completed))
}

func (r *RefreshRunner) open(ctx context.Context, kind RefreshKind, req tvapi.RefreshRequest) (io.ReadCloser, error) {
	switch kind {
	case RefreshPlaylist:
		return r.opener.RefreshPlaylist(ctx, req)
	case RefreshGuide:
		return r.opener.RefreshGuide(ctx, req)
	default:
		return r.opener.HardReset(ctx)
	}
}

func (r *RefreshRunner) update(entry *runEntry, fn func(*Run)) Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&entry.run)
	return entry.run
}

func (r *RefreshRunner) finish(ctx context.Context, entry *runEntry, err error, completed bool) Run {
	r.mu.Lock()
	run := &entry.run
	run.FinishedAt = r.now()
	switch {
	case ctx.Err() != nil:
		run.Status = RunCancelled
	case err != nil:
		run.Status = RunFailed
		if errors.Is(err, tvapi.ErrNetwork) || errors.Is(err, tvapi.ErrNotFound) {
			run.Err = err
		} else {
			run.Err = fmt.Errorf("%w: %w", tvapi.ErrNetwork, err)
		}
	default:
		run.Status = RunCompleted
		run.Implicit = !completed
	}
	if r.active[run.Kind] == run.ID {
		delete(r.active, run.Kind)
	}
	snapshot := *run
	r.mu.Unlock()

	switch snapshot.Status {
	case RunCompleted:
		r.log.Info("refresh completed", "kind", string(snapshot.Kind), "run", snapshot.ID, "implicit", snapshot.Implicit, "message", snapshot.Message)
		r.recordCompletion(snapshot)
	case RunCancelled:
		r.log.Info("refresh cancelled", "kind", string(snapshot.Kind), "run", snapshot.ID)
	case RunFailed:
		r.log.Error("refresh failed", "kind", string(snapshot.Kind), "run", snapshot.ID, "err", snapshot.Err)
	}
	return snapshot
}

func (r *RefreshRunner) recordCompletion(run Run) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Set(lastRunKey(run.Kind), run.FinishedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		r.log.Warn("record refresh time failed", "kind", string(run.Kind), "err", err)
	}
}

func lastRunKey(kind RefreshKind) string {
	return "refresh/" + string(kind) + "/last_completed"
}

// LastCompleted returns when a run of kind last completed, or the zero time.
func (r *RefreshRunner) LastCompleted(kind RefreshKind) time.Time {
	if r.recorder == nil {
		return time.Time{}
	}
	raw, ok, err := r.recorder.Get(lastRunKey(kind))
	if err != nil || !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		r.log.Warn("ignoring unreadable refresh time", "kind", string(kind), "value", raw)
		return time.Time{}
	}
	return t
}

// Cancel aborts the run with the given id. It reports whether the run was
// still active.
func (r *RefreshRunner) Cancel(id string) bool {
	r.mu.Lock()
	entry, ok := r.runs[id]
	active := ok && entry.run.Status.IsActive()
	r.mu.Unlock()
	if !active {
		return false
	}
	entry.cancel()
	return true
}

// Active returns the id of the active run of kind, if any.
func (r *RefreshRunner) Active(kind RefreshKind) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[kind]
	return id, ok
}

func (r *RefreshRunner) Get(id string) (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return entry.run, true
}

// Wait blocks until the run finishes or ctx is done.
func (r *RefreshRunner) Wait(ctx context.Context, id string) (Run, error) {
	r.mu.Lock()
	entry, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return Run{}, fmt.Errorf("refresh run %s: %w", id, tvapi.ErrNotFound)
	}
	select {
	case <-entry.done:
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
	run, _ := r.Get(id)
	return run, nil
}

// Runs returns all known runs, oldest first.
func (r *RefreshRunner) Runs() []Run {
	r.mu.Lock()
	out := make([]Run, 0, len(r.runs))
	for _, entry := range r.runs {
		out = append(out, entry.run)
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// NeedsRefresh applies the backend's interval rule: a refresh is due when
// forced, when it never ran, or once intervalHours have passed.
func NeedsRefresh(lastUpdated time.Time, intervalHours int, force bool, now time.Time) bool {
	if force || lastUpdated.IsZero() {
		return true
	}
	if intervalHours <= 0 {
		return false
	}
	return now.Sub(lastUpdated) >= time.Duration(intervalHours)*time.Hour
}
