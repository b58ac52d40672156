package projection

import (
	"context"
	"maps"
	"sync"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// MemoryStore keeps projections in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	views map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{views: make(map[string]State)}
}

// view returns the state of projection, creating it when needed. Callers hold the write lock.
func (s *MemoryStore) view(projection string) State {
	state, ok := s.views[projection]
	if !ok {
		state = NewState()
		s.views[projection] = state
	}

	return state
}

func (s *MemoryStore) Checkpoint(ctx context.Context, projection, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.views[projection].Checkpoints[aggregateID], nil
}

func (s *MemoryStore) Apply(ctx context.Context, projection string, event eventstore.Event, fn func(View) error) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.view(projection)
	if state.Checkpoints[event.AggregateID] >= event.Version {
		return false, nil
	}

	if fn != nil {
		staged := newStagedView(func(key string) (Record, bool, error) {
			record, ok := state.Records[key]
			return record, ok, nil
		}, event.Timestamp)

		if err := fn(staged); err != nil {
			return false, err
		}

		for key := range staged.deletes {
			delete(state.Records, key)
		}
		maps.Copy(state.Records, staged.puts)
	}

	state.Checkpoints[event.AggregateID] = event.Version

	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, projection, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.views[projection].Records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}

	return record, nil
}

func (s *MemoryStore) List(ctx context.Context, projection string, options ListOptions) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return listRecords(s.views[projection].Records, options), nil
}

func (s *MemoryStore) Export(ctx context.Context, projection string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state := NewState()
	if current, ok := s.views[projection]; ok {
		maps.Copy(state.Records, current.Records)
		maps.Copy(state.Checkpoints, current.Checkpoints)
	}

	return state, nil
}

func (s *MemoryStore) Replace(ctx context.Context, projection string, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	replacement := NewState()
	maps.Copy(replacement.Records, state.Records)
	maps.Copy(replacement.Checkpoints, state.Checkpoints)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.views[projection] = replacement

	return nil
}

var _ Store = (*MemoryStore)(nil)
