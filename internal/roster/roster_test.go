package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/measureme/internal/models"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

func f(v float64) *float64 { return &v }

func student(name, roll string) models.Student {
	return models.Student{ID: roll, Name: name, RollNumber: roll}
}

func names(records []models.Student) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Equal(t, 0, stats.Count)
	assert.Nil(t, stats.MostRecent)
	assert.Nil(t, stats.AverageBMI)
	assert.Equal(t, Unavailable, stats.MostRecentName())
	assert.Equal(t, Unavailable, stats.AverageBMIString())
}

func TestComputeStatsSkipsIncompleteRecords(t *testing.T) {
	a := student("Asha", "1")
	a.Height, a.Weight = f(160), f(56)
	b := student("Ravi", "2")
	b.Height = f(180)
	c := student("Mina", "3")
	c.Height, c.Weight = f(0), f(40)

	stats := ComputeStats([]models.Student{a, b, c})
	assert.Equal(t, 3, stats.Count)
	require.NotNil(t, stats.AverageBMI)
	assert.InDelta(t, 21.875, *stats.AverageBMI, 1e-9)
	assert.Equal(t, "21.9", stats.AverageBMIString())
	assert.Equal(t, "Mina", stats.MostRecentName())
}

func TestMostRecentPrefersTimestamps(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a, b, c := student("A", "1"), student("B", "2"), student("C", "3")
	a.CreatedAt, b.CreatedAt, c.CreatedAt = base, base.Add(2*time.Hour), base.Add(time.Hour)
	assert.Equal(t, "B", ComputeStats([]models.Student{a, b, c}).MostRecentName())

	c.CreatedAt = time.Time{}
	assert.Equal(t, "C", ComputeStats([]models.Student{a, b, c}).MostRecentName())
}

func TestBMICategory(t *testing.T) {
	_, ok := BMI(0, 50)
	assert.False(t, ok)
	_, ok = BMI(170, -1)
	assert.False(t, ok)

	cases := map[float64]string{
		18.4: CategoryUnderweight,
		18.5: CategoryNormal,
		24.9: CategoryNormal,
		25:   CategoryOverweight,
		30:   CategoryObese,
	}
	for bmi, want := range cases {
		assert.Equal(t, want, Category(bmi), "bmi %v", bmi)
	}
}

func TestFilter(t *testing.T) {
	records := []models.Student{student("Asha Rao", "A-17"), student("Ravi", "B-02"), student("Mina", "a-99")}
	assert.Equal(t, names(records), names(Filter(records, "")))
	assert.Equal(t, []string{"Asha Rao", "Mina"}, names(Filter(records, "a-")))
	assert.Equal(t, []string{"Asha Rao"}, names(Filter(records, "RAO")))
	assert.Empty(t, Filter(records, "zzz"))
	assert.Equal(t, []string{"Asha Rao"}, names(Filter(records, " ")))
}

func TestSortToggle(t *testing.T) {
	vm := NewViewModel(nil, nil)
	vm.SetRecords([]models.Student{student("bob", "10"), student("Alice", "2"), student("carol", "1")})

	cfg := vm.SetSort(SortByName)
	assert.Equal(t, Ascending, cfg.Direction)
	assert.Equal(t, []string{"Alice", "bob", "carol"}, names(vm.View().Records))

	cfg = vm.SetSort(SortByName)
	assert.Equal(t, Descending, cfg.Direction)
	assert.Equal(t, []string{"carol", "bob", "Alice"}, names(vm.View().Records))

	cfg = vm.SetSort(SortByRollNumber)
	assert.Equal(t, SortConfig{Key: SortByRollNumber, Direction: Ascending}, cfg)
	assert.Equal(t, []string{"carol", "Alice", "bob"}, names(vm.View().Records))

	vm.SetSort(SortByRollNumber)
	cfg = vm.SetSort(SortByRollNumber)
	assert.Equal(t, Ascending, cfg.Direction)
}

func TestSortIsStable(t *testing.T) {
	records := []models.Student{student("x", "1"), student("y", "2"), student("z", "3")}
	for i := range records {
		records[i].Standard = "5"
	}
	sorted := SortRecords(records, &SortConfig{Key: SortByStandard})
	assert.Equal(t, []string{"x", "y", "z"}, names(sorted))
	sorted = SortRecords(records, &SortConfig{Key: SortByStandard, Direction: Descending})
	assert.Equal(t, []string{"x", "y", "z"}, names(sorted))
}

func TestSortTreatsNonFiniteWordsAsText(t *testing.T) {
	records := []models.Student{student("Zara", "Inf"), student("Nan", "2"), student("Inf", "NaN"), student("Amit", "10")}

	sorted := SortRecords(records, &SortConfig{Key: SortByName})
	assert.Equal(t, []string{"Amit", "Inf", "Nan", "Zara"}, names(sorted))

	sorted = SortRecords(records, &SortConfig{Key: SortByRollNumber})
	assert.Equal(t, []string{"Nan", "Amit", "Zara", "Inf"}, names(sorted))
}

func TestParseSortKey(t *testing.T) {
	key, err := ParseSortKey(" Roll_Number ")
	require.NoError(t, err)
	assert.Equal(t, SortByRollNumber, key)

	_, err = ParseSortKey("height")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

type stubLister struct {
	mu      sync.Mutex
	results [][]models.Student
	errs    []error
	gates   []chan struct{}
	calls   int
}

func (s *stubLister) ListStudents(ctx context.Context) ([]models.Student, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i < len(s.gates) && s.gates[i] != nil {
		<-s.gates[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return s.results[i], nil
}

func TestRefreshKeepsRecordsOnError(t *testing.T) {
	lister := &stubLister{
		results: [][]models.Student{{student("Asha", "1")}, nil},
		errs:    []error{nil, appErrors.ErrServiceUnavailable},
	}
	vm := NewViewModel(lister, nil)
	require.NoError(t, vm.Refresh(context.Background()))

	err := vm.Refresh(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrServiceUnavailable))
	assert.Equal(t, []string{"Asha"}, names(vm.Records()))
}

func TestRefreshDropsStaleFetch(t *testing.T) {
	slow := make(chan struct{})
	lister := &stubLister{
		results: [][]models.Student{{student("Old", "1")}, {student("New", "1"), student("Newer", "2")}},
		gates:   []chan struct{}{slow, nil},
	}
	vm := NewViewModel(lister, nil)

	done := make(chan error, 1)
	go func() { done <- vm.Refresh(context.Background()) }()
	require.Eventually(t, func() bool {
		lister.mu.Lock()
		defer lister.mu.Unlock()
		return lister.calls == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, vm.Refresh(context.Background()))
	close(slow)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"New", "Newer"}, names(vm.Records()))
}

func TestViewStatsCoverAllRecords(t *testing.T) {
	vm := NewViewModel(nil, nil)
	a := student("Asha", "1")
	a.Height, a.Weight = f(160), f(56)
	vm.SetRecords([]models.Student{a, student("Ravi", "2")})
	vm.SetSearchTerm("ravi")

	view := vm.View()
	assert.Equal(t, []string{"Ravi"}, names(view.Records))
	assert.Equal(t, 2, view.Stats.Count)

	ds := view.Dataset("Roster")
	assert.Equal(t, ExportHeaders, ds.Headers)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "", ds.Rows[0]["BMI"])
	assert.Contains(t, ds.Summary, "Average BMI: 21.9")
}

func TestRowsIncludesBMI(t *testing.T) {
	a := student("Asha", "1")
	a.Height, a.Weight = f(160), f(56)
	rows := Rows([]models.Student{a})
	assert.Equal(t, "21.9", rows[0]["BMI"])
	assert.Equal(t, CategoryNormal, rows[0]["Category"])
	assert.Equal(t, "160", rows[0]["Height (cm)"])
}
