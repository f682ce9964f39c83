package favorites

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/alexivanou/citysearch/internal/model"
	"go.uber.org/zap"
)

// DefaultKey is the storage key holding the favorites blob
const DefaultKey = "FavoriteCities"

// Errors returned by Store operations
var (
	ErrLoad    = errors.New("failed to load favorites")
	ErrPersist = errors.New("failed to persist favorites")
	ErrClosed  = errors.New("favorites store is closed")
)

// Storage is a key-value facility holding opaque blobs
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Option configures a Store
type Option func(*Store)

// WithKey sets the storage key the favorites blob is persisted under
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithLogger sets the logger for corrupt blobs and observer panics
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is the set of favorite cities, kept in insertion order and written
// through to Storage after every change.
//
// One mutex is held for the whole of every operation, including the storage
// write, so no operation observes a partial mutation. Observers are called
// from a dispatcher goroutine in the order changes were committed.
type Store struct {
	storage Storage
	key     string
	logger  *zap.Logger

	mu        sync.Mutex
	loaded    bool
	closed    bool
	cities    []model.City
	observers map[string]*observer
	seq       uint64

	queue *deliveryQueue
	done  chan struct{}
}

// New creates a store over storage. Nothing is read until the first operation.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:   storage,
		key:       DefaultKey,
		logger:    zap.NewNop(),
		observers: make(map[string]*observer),
		queue:     newDeliveryQueue(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.dispatch()
	return s
}

// IsFavorite reports whether a city with the same id is in the set
func (s *Store) IsFavorite(ctx context.Context, city model.City) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return false, err
	}
	return s.indexLocked(city) >= 0, nil
}

// List returns the favorites in insertion order
func (s *Store) List(ctx context.Context) ([]model.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return nil, err
	}
	return clone(s.cities), nil
}

// Add appends the city unless it is already a favorite
func (s *Store) Add(ctx context.Context, city model.City) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return err
	}
	if s.indexLocked(city) >= 0 {
		return nil
	}
	return s.commitLocked(ctx, append(clone(s.cities), city))
}

// Remove drops the city if it is a favorite
func (s *Store) Remove(ctx context.Context, city model.City) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return err
	}
	i := s.indexLocked(city)
	if i < 0 {
		return nil
	}
	return s.commitLocked(ctx, without(s.cities, i))
}

// Toggle adds or removes the city and returns whether it is now a favorite
func (s *Store) Toggle(ctx context.Context, city model.City) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return false, err
	}

	if i := s.indexLocked(city); i >= 0 {
		if err := s.commitLocked(ctx, without(s.cities, i)); err != nil {
			return true, err
		}
		return false, nil
	}

	if err := s.commitLocked(ctx, append(clone(s.cities), city)); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe registers fn under id, replacing any previous observer with
// that id, and sends it the current favorites once.
func (s *Store) Subscribe(ctx context.Context, id string, fn func([]model.City)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return err
	}
	s.seq++
	s.observers[id] = &observer{fn: fn, since: s.seq}
	s.queue.push(delivery{seq: s.seq, target: id, cities: clone(s.cities)})
	return nil
}

// Unsubscribe removes the observer. Once it returns the observer is not
// called again, apart from a delivery that is already running.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
}

// Close delivers pending notifications and stops the dispatcher
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.queue.close()
	<-s.done
}

func (s *Store) readyLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.loaded {
		return nil
	}

	data, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}
	s.loaded = true
	if !ok {
		return nil
	}

	cities, err := decode(data)
	if err != nil {
		s.logger.Warn("Failed to decode favorites, starting empty",
			zap.String("key", s.key),
			zap.Error(err),
		)
		return nil
	}
	s.cities = cities
	s.logger.Debug("Loaded favorites", zap.Int("count", len(cities)))
	return nil
}

// commitLocked writes next and only then makes it current. A failed write
// leaves the in-memory set untouched and notifies nobody.
func (s *Store) commitLocked(ctx context.Context, next []model.City) error {
	data, err := encode(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	// A started mutation runs to completion even if the caller gives up.
	if err := s.storage.Set(context.WithoutCancel(ctx), s.key, data); err != nil {
		s.logger.Error("Failed to save favorites", zap.String("key", s.key), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.cities = next
	s.seq++
	s.queue.push(delivery{seq: s.seq, broadcast: true, cities: clone(next)})
	return nil
}

func (s *Store) indexLocked(city model.City) int {
	for i, c := range s.cities {
		if c.Same(city) {
			return i
		}
	}
	return -1
}

func (s *Store) dispatch() {
	defer close(s.done)

	for {
		d, ok := s.queue.pop()
		if !ok {
			return
		}

		s.mu.Lock()
		var targets []func([]model.City)
		if d.broadcast {
			for _, o := range s.observers {
				// Observers that joined later already got a newer snapshot.
				if o.since < d.seq {
					targets = append(targets, o.fn)
				}
			}
		} else if o, ok := s.observers[d.target]; ok && o.since == d.seq {
			targets = append(targets, o.fn)
		}
		s.mu.Unlock()

		for _, fn := range targets {
			s.deliver(fn, clone(d.cities))
		}
	}
}

func (s *Store) deliver(fn func([]model.City), cities []model.City) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Favorites observer panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn(cities)
}

type observer struct {
	fn    func([]model.City)
	since uint64
}

func clone(cities []model.City) []model.City {
	out := make([]model.City, len(cities))
	copy(out, cities)
	return out
}

func without(cities []model.City, i int) []model.City {
	out := make([]model.City, 0, len(cities)-1)
	out = append(out, cities[:i]...)
	return append(out, cities[i+1:]...)
}
