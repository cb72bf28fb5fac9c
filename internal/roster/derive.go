package roster

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/measureme/internal/models"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

// SortKey names a sortable roster column.
type SortKey string

const (
	SortByName       SortKey = "name"
	SortByRollNumber SortKey = "roll_number"
	SortByStandard   SortKey = "standard"
	SortByDivision   SortKey = "division"
)

// ParseSortKey validates a column name.
func ParseSortKey(raw string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(raw))); key {
	case SortByName, SortByRollNumber, SortByStandard, SortByDivision:
		return key, nil
	default:
		return "", appErrors.NewValidationError(appErrors.FieldError{
			Field:   "sort",
			Message: "must be one of name, roll_number, standard, division",
		})
	}
}

// Direction of a sort.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// SortConfig is the active column and direction.
type SortConfig struct {
	Key       SortKey
	Direction Direction
}

// Toggle returns the config after selecting key: the same key flips from
// ascending to descending, anything else starts ascending.
func Toggle(current *SortConfig, key SortKey) SortConfig {
	if current != nil && current.Key == key && current.Direction == Ascending {
		return SortConfig{Key: key, Direction: Descending}
	}
	return SortConfig{Key: key, Direction: Ascending}
}

// Filter keeps records whose name or roll number contains term,
// case-insensitively. An empty term keeps everything in order. The term is
// matched as typed, so surrounding spaces are significant.
func Filter(records []models.Student, term string) []models.Student {
	needle := strings.ToLower(term)
	out := make([]models.Student, 0, len(records))
	for _, r := range records {
		if needle == "" ||
			strings.Contains(strings.ToLower(r.Name), needle) ||
			strings.Contains(strings.ToLower(r.RollNumber), needle) {
			out = append(out, r)
		}
	}
	return out
}

// SortRecords returns a stably sorted copy. A nil config keeps input order.
func SortRecords(records []models.Student, cfg *SortConfig) []models.Student {
	out := append([]models.Student(nil), records...)
	if cfg == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortValue(out[i], cfg.Key), sortValue(out[j], cfg.Key)
		if cfg.Direction == Descending {
			return naturalLess(b, a)
		}
		return naturalLess(a, b)
	})
	return out
}

func sortValue(s models.Student, key SortKey) string {
	switch key {
	case SortByRollNumber:
		return s.RollNumber
	case SortByStandard:
		return s.Standard
	case SortByDivision:
		return s.Division
	default:
		return s.Name
	}
}

// naturalLess orders numeric values numerically and before text; text
// compares case-insensitively with the raw value as tiebreak.
func naturalLess(a, b string) bool {
	na, aNum := parseNumber(a)
	nb, bNum := parseNumber(b)
	switch {
	case aNum && bNum:
		return na < nb
	case aNum != bNum:
		return aNum
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

func parseNumber(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Stats aggregates a record set.
type Stats struct {
	Count      int
	MostRecent *models.Student
	AverageBMI *float64
}

// Unavailable is shown for stats with no value.
const Unavailable = "N/A"

// MostRecentName renders the most recent record's name.
func (s Stats) MostRecentName() string {
	if s.MostRecent == nil {
		return Unavailable
	}
	return s.MostRecent.Name
}

// AverageBMIString renders the mean BMI to one decimal.
func (s Stats) AverageBMIString() string {
	if s.AverageBMI == nil {
		return Unavailable
	}
	return strconv.FormatFloat(*s.AverageBMI, 'f', 1, 64)
}

// ComputeStats counts records, picks the most recent one and averages BMI
// over records with both measurements positive.
func ComputeStats(records []models.Student) Stats {
	stats := Stats{Count: len(records)}
	if len(records) == 0 {
		return stats
	}
	stats.MostRecent = mostRecent(records)

	var total float64
	var qualifying int
	for _, r := range records {
		if bmi, ok := StudentBMI(r); ok {
			total += bmi
			qualifying++
		}
	}
	if qualifying > 0 {
		avg := total / float64(qualifying)
		stats.AverageBMI = &avg
	}
	return stats
}

// mostRecent uses creation timestamps when every record has one and falls
// back to the last element in server order otherwise.
func mostRecent(records []models.Student) *models.Student {
	latest := -1
	var latestAt time.Time
	for i, r := range records {
		if r.CreatedAt.IsZero() {
			latest = -1
			break
		}
		if latest < 0 || !r.CreatedAt.Before(latestAt) {
			latest, latestAt = i, r.CreatedAt
		}
	}
	if latest < 0 {
		latest = len(records) - 1
	}
	rec := records[latest]
	return &rec
}
