package roster

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/models"
)

// Lister fetches the full roster snapshot.
type Lister interface {
	ListStudents(ctx context.Context) ([]models.Student, error)
}

// View is one consistent derivation of the roster.
type View struct {
	Records    []models.Student
	SearchTerm string
	Sort       *SortConfig
	Stats      Stats
}

// ViewModel holds the last fetched records plus search and sort parameters.
// Every derived accessor recomputes from that state; nothing derived is stored.
type ViewModel struct {
	lister Lister
	logger *zap.Logger

	mu         sync.RWMutex
	records    []models.Student
	searchTerm string
	sort       *SortConfig
	fetchSeq   uint64
	appliedSeq uint64
}

// NewViewModel builds an empty view-model.
func NewViewModel(lister Lister, logger *zap.Logger) *ViewModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewModel{lister: lister, logger: logger}
}

// SetRecords replaces the held records wholesale.
func (vm *ViewModel) SetRecords(records []models.Student) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.records = append([]models.Student(nil), records...)
}

// Refresh fetches a fresh snapshot. On error the current records stay in
// place. A fetch that completes after a newer one has been applied is dropped.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	vm.mu.Lock()
	vm.fetchSeq++
	seq := vm.fetchSeq
	vm.mu.Unlock()

	records, err := vm.lister.ListStudents(ctx)
	if err != nil {
		vm.logger.Warn("roster refresh failed", zap.Error(err))
		return err
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if seq < vm.appliedSeq {
		vm.logger.Debug("discarded stale roster fetch", zap.Uint64("seq", seq))
		return nil
	}
	vm.appliedSeq = seq
	vm.records = append([]models.Student(nil), records...)
	vm.logger.Debug("roster refreshed", zap.Int("count", len(records)))
	return nil
}

// SetSearchTerm updates the filter term.
func (vm *ViewModel) SetSearchTerm(term string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.searchTerm = term
}

// SetSort selects a column, toggling direction on repeat selection.
func (vm *ViewModel) SetSort(key SortKey) SortConfig {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	next := Toggle(vm.sort, key)
	vm.sort = &next
	return next
}

// Sort returns the active sort, if any.
func (vm *ViewModel) Sort() *SortConfig {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.sort == nil {
		return nil
	}
	cfg := *vm.sort
	return &cfg
}

// Records returns a copy of the held records in server order.
func (vm *ViewModel) Records() []models.Student {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]models.Student(nil), vm.records...)
}

// Filtered returns the search-filtered records, unsorted.
func (vm *ViewModel) Filtered() []models.Student {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return Filter(vm.records, vm.searchTerm)
}

// View derives filtered, sorted records and stats from a single snapshot.
// Stats cover the whole record set, not the filtered subset.
func (vm *ViewModel) View() View {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	var cfg *SortConfig
	if vm.sort != nil {
		c := *vm.sort
		cfg = &c
	}
	return View{
		Records:    SortRecords(Filter(vm.records, vm.searchTerm), cfg),
		SearchTerm: vm.searchTerm,
		Sort:       cfg,
		Stats:      ComputeStats(vm.records),
	}
}
