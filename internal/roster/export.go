package roster

import (
	"strconv"

	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/pkg/export"
)

// Export column headers.
var ExportHeaders = []string{"Name", "Roll Number", "Standard", "Division", "Height (cm)", "Weight (kg)", "BMI", "Category"}

// Rows renders records into export rows. Missing values are left blank.
func Rows(records []models.Student) []map[string]string {
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		row := map[string]string{
			"Name":        r.Name,
			"Roll Number": r.RollNumber,
			"Standard":    r.Standard,
			"Division":    r.Division,
		}
		if r.Height != nil {
			row["Height (cm)"] = strconv.FormatFloat(*r.Height, 'f', -1, 64)
		}
		if r.Weight != nil {
			row["Weight (kg)"] = strconv.FormatFloat(*r.Weight, 'f', -1, 64)
		}
		if bmi, ok := StudentBMI(r); ok {
			row["BMI"] = strconv.FormatFloat(bmi, 'f', 1, 64)
			row["Category"] = Category(bmi)
		}
		rows = append(rows, row)
	}
	return rows
}

// Dataset turns a view into an export dataset with the stats as summary.
func (v View) Dataset(title string) export.Dataset {
	return export.Dataset{
		Title:   title,
		Headers: ExportHeaders,
		Rows:    Rows(v.Records),
		Summary: []string{
			"Total students: " + strconv.Itoa(v.Stats.Count),
			"Most recent: " + v.Stats.MostRecentName(),
			"Average BMI: " + v.Stats.AverageBMIString(),
		},
	}
}
