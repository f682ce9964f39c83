package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/alexivanou/citysearch/internal/index"
	"github.com/alexivanou/citysearch/internal/model"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last keystroke before a search runs
const DefaultDebounce = 300 * time.Millisecond

// Search outcomes reported to Metrics
const (
	OutcomeLoaded    = "loaded"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeCancelled = "cancelled"
)

// LiveSearchOption configures a LiveSearch
type LiveSearchOption func(*LiveSearch)

// WithDebounce sets how long the text must stay unchanged before it is searched
func WithDebounce(d time.Duration) LiveSearchOption {
	return func(l *LiveSearch) {
		l.debounce = d
	}
}

// WithLogger sets the logger for search failures
func WithLogger(logger *zap.Logger) LiveSearchOption {
	return func(l *LiveSearch) {
		l.logger = logger
	}
}

// WithLiveMetrics reports live searches to m
func WithLiveMetrics(m Metrics) LiveSearchOption {
	return func(l *LiveSearch) {
		l.metrics = m
	}
}

type stateListener struct {
	fn   func(model.QueryState)
	seen uint64
}

// LiveSearch turns a stream of text changes into query states.
//
// Every text change cancels the pending task and schedules a new one that
// waits for the debounce period. Only a task whose context is still live may
// change the state, and that check happens under the same lock that cancels
// it, so a superseded task never overwrites a newer result.
//
// Listeners are called from a single dispatcher goroutine, in order. A slow
// listener may miss intermediate states but always receives the latest one.
type LiveSearch struct {
	searcher index.Searcher
	policy   SearchPolicy
	debounce time.Duration
	logger   *zap.Logger
	metrics  Metrics

	mu        sync.Mutex
	text      string
	selected  *model.City
	state     model.QueryState
	version   uint64
	cancel    context.CancelFunc
	closed    bool
	listeners map[string]*stateListener

	tasks  sync.WaitGroup
	signal chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// NewLiveSearch starts a live search in the Idle state
func NewLiveSearch(searcher index.Searcher, policy SearchPolicy, opts ...LiveSearchOption) *LiveSearch {
	l := &LiveSearch{
		searcher:  searcher,
		policy:    policy,
		debounce:  DefaultDebounce,
		logger:    zap.NewNop(),
		metrics:   nopMetrics{},
		state:     model.IdleState(),
		version:   1,
		listeners: make(map[string]*stateListener),
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.dispatch()
	return l
}

// OnTextChanged records the new text and restarts the debounce timer
func (l *LiveSearch) OnTextChanged(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.text = text
	l.cancelLocked()

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.tasks.Add(1)
	go l.run(ctx, text)
}

// SelectCity records the chosen city and resets the search
func (l *LiveSearch) SelectCity(city model.City) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.cancelLocked()
	l.selected = &city
	l.text = ""
	changed := l.setStateLocked(model.IdleState())
	l.mu.Unlock()

	if changed {
		l.notify()
	}
}

// Clear drops the text and the selected city
func (l *LiveSearch) Clear() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.cancelLocked()
	l.selected = nil
	l.text = ""
	changed := l.setStateLocked(model.IdleState())
	l.mu.Unlock()

	if changed {
		l.notify()
	}
}

// State returns the current query state
func (l *LiveSearch) State() model.QueryState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Text returns the current query text
func (l *LiveSearch) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// Selected returns the last selected city, if any
func (l *LiveSearch) Selected() (model.City, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.selected == nil {
		return model.City{}, false
	}
	return *l.selected, true
}

// Subscribe registers fn under id, replacing any previous listener with the
// same id. The current state is delivered right away.
func (l *LiveSearch) Subscribe(id string, fn func(model.QueryState)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.listeners[id] = &stateListener{fn: fn}
	l.mu.Unlock()

	l.notify()
}

// Unsubscribe removes the listener. A delivery already in progress may still complete.
func (l *LiveSearch) Unsubscribe(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listeners, id)
}

// Close cancels the pending task and stops notifications.
// It waits for running tasks, so searchers should honour their context.
func (l *LiveSearch) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.cancelLocked()
	l.listeners = make(map[string]*stateListener)
	l.mu.Unlock()

	l.tasks.Wait()
	close(l.done)
	<-l.exited
}

func (l *LiveSearch) cancelLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// setStateLocked reports whether listeners have something new to see.
// Idle to Idle is not a change.
func (l *LiveSearch) setStateLocked(next model.QueryState) bool {
	if next.Kind == model.StateIdle && l.state.Kind == model.StateIdle {
		return false
	}
	l.state = next
	l.version++
	return true
}

// transition applies next only if ctx has not been cancelled
func (l *LiveSearch) transition(ctx context.Context, next model.QueryState) bool {
	l.mu.Lock()
	if ctx.Err() != nil {
		l.mu.Unlock()
		return false
	}
	changed := l.setStateLocked(next)
	l.mu.Unlock()

	if changed {
		l.notify()
	}
	return true
}

func (l *LiveSearch) run(ctx context.Context, text string) {
	defer l.tasks.Done()

	timer := time.NewTimer(l.debounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !l.policy.ShouldSearch(strings.TrimSpace(text)) {
		if l.transition(ctx, model.IdleState()) {
			l.metrics.ObserveSearch(SourceLive, OutcomeSkipped, 0)
		}
		return
	}

	if !l.transition(ctx, model.LoadingState()) {
		return
	}

	start := time.Now()
	results, err := l.searcher.SearchPrefix(ctx, text)
	elapsed := time.Since(start)

	var next model.QueryState
	var outcome string
	switch {
	case err != nil:
		next = model.ErrorState(fmt.Sprintf("Search failed: %v", err))
		outcome = OutcomeFailed
	case len(results) == 0:
		next = model.ErrorState(fmt.Sprintf("No cities found matching '%s'", text))
		outcome = OutcomeEmpty
	default:
		next = model.LoadedState(results)
		outcome = OutcomeLoaded
	}

	if !l.transition(ctx, next) {
		l.metrics.ObserveSearch(SourceLive, OutcomeCancelled, elapsed)
		return
	}

	l.metrics.ObserveSearch(SourceLive, outcome, elapsed)
	if err != nil {
		l.logger.Warn("Live search failed", zap.String("query", text), zap.Error(err))
	} else {
		l.logger.Debug("Live search completed",
			zap.String("query", text),
			zap.Int("results", len(results)),
			zap.Duration("elapsed", elapsed),
		)
	}
}

func (l *LiveSearch) notify() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *LiveSearch) dispatch() {
	defer close(l.exited)

	for {
		select {
		case <-l.signal:
		case <-l.done:
			return
		}

		for {
			l.mu.Lock()
			state, version := l.state, l.version
			var pending []func(model.QueryState)
			for _, ls := range l.listeners {
				if ls.seen < version {
					ls.seen = version
					pending = append(pending, ls.fn)
				}
			}
			l.mu.Unlock()

			if len(pending) == 0 {
				break
			}
			for _, fn := range pending {
				l.deliver(fn, state)
			}
		}
	}
}

func (l *LiveSearch) deliver(fn func(model.QueryState), state model.QueryState) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Query state listener panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn(state)
}
