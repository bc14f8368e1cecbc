package control

import (
	"sync"
	"time"

	"github.com/taskscope/scheduler/internal/scheduling"
)

// historyDepth bounds the in-memory run history kept per entry. This is a
// SPEC_FULL.md supplement (execution history), diagnostic only: it is
// never persisted and is lost on restart, same as everything else the
// registry holds (spec.md §1 Non-goals: no durable persistence).
const historyDepth = 20

// HistoryRecord is one past DoWork outcome for a (tenant, task).
type HistoryRecord struct {
	StartedUtc time.Time
	StoppedUtc time.Time
	Err        error
}

type historyStore struct {
	mu      sync.Mutex
	records map[scheduling.TaskKey][]HistoryRecord
}

func newHistoryStore() *historyStore {
	return &historyStore{records: make(map[scheduling.TaskKey][]HistoryRecord)}
}

func (h *historyStore) record(key scheduling.TaskKey, rec HistoryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	recs := append(h.records[key], rec)
	if len(recs) > historyDepth {
		recs = recs[len(recs)-historyDepth:]
	}
	h.records[key] = recs
}

func (h *historyStore) get(key scheduling.TaskKey) []HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	recs := h.records[key]
	out := make([]HistoryRecord, len(recs))
	copy(out, recs)
	return out
}

func (h *historyStore) prune(valid map[scheduling.TaskKey]struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.records {
		if _, ok := valid[k]; !ok {
			delete(h.records, k)
		}
	}
}
