package translate

import (
	"testing"

	"github.com/datasage-io/datasage/internal/dataset"
)

func employeeSchema() []dataset.Column {
	return []dataset.Column{
		{Name: "age", Type: dataset.TypeInteger},
		{Name: "salary", Type: dataset.TypeInteger},
		{Name: "experience", Type: dataset.TypeInteger},
		{Name: "department", Type: dataset.TypeText},
		{Name: "performance_score", Type: dataset.TypeReal},
	}
}

func TestRulesTranslate(t *testing.T) {
	r := NewRules("user_data")
	schema := employeeSchema()

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{
			"average of named column",
			"What is the average salary?",
			"SELECT AVG(salary) as average_salary FROM user_data",
		},
		{
			"column name inside another word is not a mention",
			"what is the average salary",
			"SELECT AVG(salary) as average_salary FROM user_data",
		},
		{
			"mean synonym",
			"mean age of employees",
			"SELECT AVG(age) as average_age FROM user_data",
		},
		{
			"sum",
			"sum of experience",
			"SELECT SUM(experience) as sum_experience FROM user_data",
		},
		{
			"total synonym",
			"total salary paid",
			"SELECT SUM(salary) as sum_salary FROM user_data",
		},
		{
			"plain count",
			"how many rows, count them",
			"SELECT COUNT(*) as count FROM user_data",
		},
		{
			"grouped count",
			"count grouped by department",
			"SELECT department, COUNT(*) as count FROM user_data GROUP BY department",
		},
		{
			"maximum",
			"maximum salary",
			"SELECT MAX(salary) as max_salary FROM user_data",
		},
		{
			"minimum",
			"min age please",
			"SELECT MIN(age) as min_age FROM user_data",
		},
		{
			"group by with two columns",
			"experience group by department",
			"SELECT department, AVG(experience) as avg_experience FROM user_data GROUP BY department",
		},
		{
			"group by with one column",
			"group by department",
			"SELECT department, COUNT(*) as count FROM user_data GROUP BY department",
		},
		{
			"where greater than",
			"rows where age greater than 30",
			"SELECT * FROM user_data WHERE age > 30",
		},
		{
			"where less than",
			"rows where salary less than 50000",
			"SELECT * FROM user_data WHERE salary < 50000",
		},
		{
			"where equal",
			"rows where experience equal to 5",
			"SELECT * FROM user_data WHERE experience = 5",
		},
		{
			"where without comparison",
			"rows where department",
			"SELECT * FROM user_data WHERE department IS NOT NULL",
		},
		{
			"where without literal defaults to zero",
			"rows where age greater than some value",
			"SELECT * FROM user_data WHERE age > 0",
		},
		{
			"oldest shortcut",
			"who is the oldest",
			"SELECT MAX(age) as max_age FROM user_data",
		},
		{
			"youngest shortcut",
			"who is the youngest",
			"SELECT MIN(age) as min_age FROM user_data",
		},
		{
			"highest salary shortcut",
			"highest salary in the company",
			"SELECT MAX(salary) as max_salary FROM user_data",
		},
		{
			"salary by department shortcut",
			"salary by department",
			"SELECT department, AVG(salary) as avg_salary FROM user_data GROUP BY department ORDER BY avg_salary DESC",
		},
		{
			"no pattern falls through to bounded select",
			"show me something interesting",
			"SELECT * FROM user_data LIMIT 10",
		},
		{
			"empty question",
			"",
			"SELECT * FROM user_data LIMIT 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Translate(tt.question, schema); got != tt.want {
				t.Errorf("Translate(%q)\n got  %q\n want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestRulesAverageWithoutColumnDefaults(t *testing.T) {
	r := NewRules("user_data")
	schema := []dataset.Column{{Name: "department", Type: dataset.TypeText}}
	want := "SELECT * FROM user_data LIMIT 10"

	if got := r.Translate("what is the average", schema); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	// Even when the request names a well-known column the schema lacks: the
	// average branch must answer with the bounded default, not a shortcut
	// query against a column that does not exist.
	if got := r.Translate("what is the average salary", schema); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRulesCustomTable(t *testing.T) {
	r := NewRules("metrics")
	got := r.Translate("count", nil)
	if want := "SELECT COUNT(*) as count FROM metrics"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMentionsColumn(t *testing.T) {
	tests := []struct {
		q, col string
		want   bool
	}{
		{"what is the average salary", "salary", true},
		{"what is the average salary", "age", false},
		{"average performance_score", "performance_score", true},
		{"age?", "age", true},
		{"teenage years", "age", false},
	}
	for _, tt := range tests {
		if got := mentionsColumn(tt.q, tt.col); got != tt.want {
			t.Errorf("mentionsColumn(%q, %q) = %v, want %v", tt.q, tt.col, got, tt.want)
		}
	}
}
