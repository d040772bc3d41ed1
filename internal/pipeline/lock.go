package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// jobLocks guarantees at most one in-flight stage operation per job
// identifier. Acquisition never blocks: a second request while one is
// running is rejected with ErrJobBusy so two updates can never race on
// the same record. Jobs with different identifiers are independent.
type jobLocks struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func newJobLocks() *jobLocks {
	return &jobLocks{active: make(map[uuid.UUID]struct{})}
}

// acquire reserves the job. Returns ErrJobBusy if already reserved.
func (l *jobLocks) acquire(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[id]; busy {
		return ErrJobBusy
	}
	l.active[id] = struct{}{}
	return nil
}

// release frees the job for the next stage operation.
func (l *jobLocks) release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, id)
}
