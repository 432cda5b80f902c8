package dataset

// SampleFilename is the filename recorded for sample sessions.
const SampleFilename = "employee_data.csv"

// Sample returns the built-in employee dataset attached to sessions whose id
// carries the "sample-" prefix.
func Sample() *Frame {
	return &Frame{
		Columns: []Column{
			{Name: "age", Type: TypeInteger},
			{Name: "salary", Type: TypeInteger},
			{Name: "experience", Type: TypeInteger},
			{Name: "education", Type: TypeText},
			{Name: "department", Type: TypeText},
			{Name: "performance_score", Type: TypeInteger},
			{Name: "attendance", Type: TypeInteger},
			{Name: "projects_completed", Type: TypeInteger},
			{Name: "satisfaction_level", Type: TypeReal},
			{Name: "last_evaluation", Type: TypeReal},
		},
		Records: [][]string{
			{"28", "72000", "5", "Masters", "Engineering", "85", "92", "7", "4.2", "4.5"},
			{"34", "86000", "10", "PhD", "Research", "92", "95", "12", "4.7", "4.8"},
			{"45", "115000", "18", "Masters", "Management", "88", "90", "9", "4.0", "4.3"},
			{"31", "65000", "7", "Bachelors", "Marketing", "76", "85", "5", "3.8", "3.9"},
			{"24", "55000", "2", "Bachelors", "Sales", "72", "88", "4", "3.5", "3.7"},
		},
	}
}
