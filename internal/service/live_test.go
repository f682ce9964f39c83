package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexivanou/citysearch/internal/index"
	"github.com/alexivanou/citysearch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDebounce = 20 * time.Millisecond

// MockSearcher implements index.Searcher
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) SearchPrefix(ctx context.Context, query string) ([]model.City, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.City), args.Error(1)
}

// recordingSearcher remembers every query it was asked and when
type recordingSearcher struct {
	next index.Searcher

	mu      sync.Mutex
	queries []string
	times   []time.Time
}

func (r *recordingSearcher) SearchPrefix(ctx context.Context, query string) ([]model.City, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.times = append(r.times, time.Now())
	r.mu.Unlock()
	return r.next.SearchPrefix(ctx, query)
}

func (r *recordingSearcher) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func (r *recordingSearcher) Times() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.times...)
}

// stateRecorder collects every state delivered to a listener
type stateRecorder struct {
	mu     sync.Mutex
	states []model.QueryState
}

func (r *stateRecorder) Listen(s model.QueryState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) Kinds() []model.StateKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]model.StateKind, len(r.states))
	for i, s := range r.states {
		kinds[i] = s.Kind
	}
	return kinds
}

func (r *stateRecorder) Last() (model.QueryState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return model.QueryState{}, false
	}
	return r.states[len(r.states)-1], true
}

func liveCatalog() []model.City {
	return []model.City{
		{ID: 1, Name: "New York", Country: "US"},
		{ID: 2, Name: "New Orleans", Country: "US"},
		{ID: 3, Name: "Buenos Aires", Country: "AR"},
	}
}

func waitForKind(t *testing.T, l *LiveSearch, kind model.StateKind) model.QueryState {
	t.Helper()
	require.Eventually(t, func() bool {
		return l.State().Kind == kind
	}, 2*time.Second, 5*time.Millisecond)
	return l.State()
}

func TestLiveSearch_InitialState(t *testing.T) {
	l := NewLiveSearch(index.Build(nil), NewMinimumCharacterPolicy(3))
	defer l.Close()

	assert.Equal(t, model.IdleState(), l.State())
	assert.Empty(t, l.Text())
	_, ok := l.Selected()
	assert.False(t, ok)
}

func TestLiveSearch_DebounceCollapsesBurst(t *testing.T) {
	searcher := &recordingSearcher{next: index.NewSorted(index.Build(liveCatalog()))}
	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(300*time.Millisecond))
	defer l.Close()

	rec := &stateRecorder{}
	l.Subscribe("rec", rec.Listen)

	l.OnTextChanged("b")
	time.Sleep(50 * time.Millisecond)
	l.OnTextChanged("bu")
	time.Sleep(50 * time.Millisecond)
	l.OnTextChanged("bue")
	lastKeystroke := time.Now()

	state := waitForKind(t, l, model.StateLoaded)
	assert.Equal(t, []model.City{{ID: 3, Name: "Buenos Aires", Country: "AR"}}, state.Results)

	// Give any stray task time to show up.
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []string{"bue"}, searcher.Queries())
	times := searcher.Times()
	require.Len(t, times, 1)
	assert.GreaterOrEqual(t, times[0].Sub(lastKeystroke), 300*time.Millisecond)

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Kind == model.StateLoaded
	}, time.Second, 5*time.Millisecond)
	assert.NotContains(t, rec.Kinds(), model.StateError)
	assert.Equal(t, "bue", l.Text())
}

func TestLiveSearch_GateRejects(t *testing.T) {
	searcher := new(MockSearcher)
	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("ab")
	time.Sleep(5 * testDebounce)

	assert.Equal(t, model.IdleState(), l.State())
	searcher.AssertNotCalled(t, "SearchPrefix", mock.Anything, mock.Anything)
}

func TestLiveSearch_GateRejectsAfterResults(t *testing.T) {
	l := NewLiveSearch(index.NewSorted(index.Build(liveCatalog())), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("new")
	state := waitForKind(t, l, model.StateLoaded)
	assert.Len(t, state.Results, 2)

	l.OnTextChanged("  n ")
	waitForKind(t, l, model.StateIdle)
	assert.Empty(t, l.State().Results, "no stale results once the gate rejects")
}

func TestLiveSearch_OrderedResults(t *testing.T) {
	l := NewLiveSearch(index.NewSorted(index.Build(liveCatalog())), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("new")
	state := waitForKind(t, l, model.StateLoaded)

	require.Len(t, state.Results, 2)
	assert.Equal(t, "New Orleans", state.Results[0].Name)
	assert.Equal(t, "New York", state.Results[1].Name)
}

func TestLiveSearch_GateTrimsButIndexSeesRawText(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("SearchPrefix", mock.Anything, "  new  ").Return(liveCatalog()[:2], nil).Once()

	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("  new  ")
	waitForKind(t, l, model.StateLoaded)
	searcher.AssertExpectations(t)
	assert.Equal(t, "  new  ", l.Text())
}

func TestLiveSearch_TrailingSpaceIsPartOfPrefix(t *testing.T) {
	cities := append(liveCatalog(), model.City{ID: 4, Name: "Newark", Country: "US"})
	l := NewLiveSearch(index.NewSorted(index.Build(cities)), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("new ")
	state := waitForKind(t, l, model.StateLoaded)
	require.Len(t, state.Results, 2)
	for _, c := range state.Results {
		assert.True(t, strings.HasPrefix(strings.ToLower(c.Name), "new "), c.Name)
	}

	l.OnTextChanged("xyz ")
	state = waitForKind(t, l, model.StateError)
	assert.Equal(t, "No cities found matching 'xyz '", state.Message)
}

func TestLiveSearch_NoResults(t *testing.T) {
	l := NewLiveSearch(index.NewSorted(index.Build(liveCatalog())), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("xyz")
	state := waitForKind(t, l, model.StateError)
	assert.Equal(t, "No cities found matching 'xyz'", state.Message)
	assert.Empty(t, state.Results)
}

func TestLiveSearch_SearchFailure(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("SearchPrefix", mock.Anything, "ber").Return(nil, errors.New("index offline"))

	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("ber")
	state := waitForKind(t, l, model.StateError)
	assert.Equal(t, "Search failed: index offline", state.Message)

	// Recoverable by the next query.
	searcher.On("SearchPrefix", mock.Anything, "berl").Return([]model.City{{ID: 9, Name: "Berlin"}}, nil)
	l.OnTextChanged("berl")
	state = waitForKind(t, l, model.StateLoaded)
	assert.Equal(t, "Berlin", state.Results[0].Name)
}

func TestLiveSearch_StaleResultNeverOverwrites(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	searcher := index.SearcherFunc(func(ctx context.Context, query string) ([]model.City, error) {
		if query == "slow" {
			close(started)
			// Ignores ctx on purpose: the result must still be discarded.
			<-release
			return []model.City{{ID: 100, Name: "Slowtown"}}, nil
		}
		return []model.City{{ID: 200, Name: "Fastville"}}, nil
	})

	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	rec := &stateRecorder{}
	l.Subscribe("rec", rec.Listen)

	l.OnTextChanged("slow")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow search never started")
	}
	assert.Equal(t, model.StateLoading, l.State().Kind)

	l.OnTextChanged("fast")
	state := waitForKind(t, l, model.StateLoaded)
	assert.Equal(t, "Fastville", state.Results[0].Name)

	close(release)
	time.Sleep(5 * testDebounce)

	state = l.State()
	require.Equal(t, model.StateLoaded, state.Kind)
	assert.Equal(t, "Fastville", state.Results[0].Name)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, s := range rec.states {
		for _, c := range s.Results {
			assert.NotEqual(t, "Slowtown", c.Name)
		}
	}
}

func TestLiveSearch_SelectCityCancelsPending(t *testing.T) {
	searcher := new(MockSearcher)
	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	city := model.City{ID: 1, Name: "New York", Country: "US"}
	l.OnTextChanged("new")
	l.SelectCity(city)

	time.Sleep(5 * testDebounce)

	searcher.AssertNotCalled(t, "SearchPrefix", mock.Anything, mock.Anything)
	assert.Equal(t, model.IdleState(), l.State())
	assert.Empty(t, l.Text())

	selected, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, city, selected)
}

func TestLiveSearch_SelectCityAfterResults(t *testing.T) {
	l := NewLiveSearch(index.Build(liveCatalog()), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("bue")
	state := waitForKind(t, l, model.StateLoaded)

	l.SelectCity(state.Results[0])
	assert.Equal(t, model.IdleState(), l.State())
	selected, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, 3, selected.ID)
}

func TestLiveSearch_Clear(t *testing.T) {
	searcher := new(MockSearcher)
	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.SelectCity(model.City{ID: 1, Name: "New York"})
	l.OnTextChanged("new")
	l.Clear()

	time.Sleep(5 * testDebounce)

	searcher.AssertNotCalled(t, "SearchPrefix", mock.Anything, mock.Anything)
	assert.Equal(t, model.IdleState(), l.State())
	assert.Empty(t, l.Text())
	_, ok := l.Selected()
	assert.False(t, ok)
}

func TestLiveSearch_SubscribeDeliversCurrentState(t *testing.T) {
	l := NewLiveSearch(index.Build(liveCatalog()), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.OnTextChanged("new")
	waitForKind(t, l, model.StateLoaded)

	late := &stateRecorder{}
	l.Subscribe("late", late.Listen)

	require.Eventually(t, func() bool {
		last, ok := late.Last()
		return ok && last.Kind == model.StateLoaded
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, late.Kinds(), 1)
}

func TestLiveSearch_Unsubscribe(t *testing.T) {
	l := NewLiveSearch(index.Build(liveCatalog()), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	rec := &stateRecorder{}
	l.Subscribe("rec", rec.Listen)
	require.Eventually(t, func() bool {
		return len(rec.Kinds()) == 1
	}, time.Second, 5*time.Millisecond)

	l.Unsubscribe("rec")
	l.OnTextChanged("new")
	waitForKind(t, l, model.StateLoaded)
	time.Sleep(5 * testDebounce)

	assert.Equal(t, []model.StateKind{model.StateIdle}, rec.Kinds())
}

func TestLiveSearch_ListenerPanicIsRecovered(t *testing.T) {
	l := NewLiveSearch(index.Build(liveCatalog()), NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))
	defer l.Close()

	l.Subscribe("bad", func(model.QueryState) { panic("boom") })
	rec := &stateRecorder{}
	l.Subscribe("good", rec.Listen)

	l.OnTextChanged("new")
	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Kind == model.StateLoaded
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLiveSearch_CloseStopsWork(t *testing.T) {
	searcher := new(MockSearcher)
	l := NewLiveSearch(searcher, NewMinimumCharacterPolicy(3), WithDebounce(testDebounce))

	l.OnTextChanged("new")
	l.Close()
	l.OnTextChanged("newer")
	l.Close()

	time.Sleep(5 * testDebounce)
	searcher.AssertNotCalled(t, "SearchPrefix", mock.Anything, mock.Anything)
	assert.Equal(t, model.IdleState(), l.State())
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	ops      []string
}

func (m *recordingMetrics) ObserveSearch(source, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, source+":"+outcome)
}

func (m *recordingMetrics) ObserveFavoriteChange(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		op += ":error"
	}
	m.ops = append(m.ops, op)
}

func (m *recordingMetrics) Outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}

func TestLiveSearch_ReportsOutcomes(t *testing.T) {
	metrics := &recordingMetrics{}
	l := NewLiveSearch(index.Build(liveCatalog()), NewMinimumCharacterPolicy(3),
		WithDebounce(testDebounce), WithLiveMetrics(metrics))
	defer l.Close()

	l.OnTextChanged("new")
	waitForKind(t, l, model.StateLoaded)
	l.OnTextChanged("xyz")
	waitForKind(t, l, model.StateError)

	require.Eventually(t, func() bool {
		return len(metrics.Outcomes()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"live:loaded", "live:empty"}, metrics.Outcomes())
}
