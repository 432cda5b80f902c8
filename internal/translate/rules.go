package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/datasage-io/datasage/internal/dataset"
)

// TableName is the single fixed table every dataset is loaded into.
const TableName = "user_data"

var intLiteral = regexp.MustCompile(`\d+`)

// Rules is the deterministic natural-language matcher, the terminal link of
// the translation chain. It always returns syntactically valid SQL; when no
// pattern matches it falls through to a bounded SELECT *.
type Rules struct {
	table string
}

// NewRules creates a matcher generating queries against table.
func NewRules(table string) *Rules {
	if table == "" {
		table = TableName
	}
	return &Rules{table: table}
}

// Translate maps the request to SQL using fixed-precedence pattern detection
// against the schema's column names. The matched column is the first schema
// column whose name appears as a whole word in the lowercased request.
func (r *Rules) Translate(question string, schema []dataset.Column) string {
	q := strings.ToLower(strings.TrimSpace(question))
	cols := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = c.Name
	}

	var sql string

	switch {
	case containsAny(q, "average", "avg", "mean"):
		// No column mention here means the bounded default directly; the
		// shortcuts below never see an average-keyword request.
		if col := firstColumn(q, cols); col != "" {
			sql = fmt.Sprintf("SELECT AVG(%s) as average_%s FROM %s", col, col, r.table)
		} else {
			sql = fmt.Sprintf("SELECT * FROM %s LIMIT 10", r.table)
		}

	case containsAny(q, "sum", "total"):
		if col := firstColumn(q, cols); col != "" {
			sql = fmt.Sprintf("SELECT SUM(%s) as sum_%s FROM %s", col, col, r.table)
		}

	case strings.Contains(q, "count"):
		if hasGroupBy(q) {
			if col := firstColumn(q, cols); col != "" {
				sql = fmt.Sprintf("SELECT %s, COUNT(*) as count FROM %s GROUP BY %s", col, r.table, col)
			}
		} else {
			sql = fmt.Sprintf("SELECT COUNT(*) as count FROM %s", r.table)
		}

	case containsAny(q, "maximum", "max"):
		if col := firstColumn(q, cols); col != "" {
			sql = fmt.Sprintf("SELECT MAX(%s) as max_%s FROM %s", col, col, r.table)
		}

	case containsAny(q, "minimum", "min"):
		if col := firstColumn(q, cols); col != "" {
			sql = fmt.Sprintf("SELECT MIN(%s) as min_%s FROM %s", col, col, r.table)
		}

	case hasGroupBy(q):
		groupCol, aggCol := groupByColumns(q, cols)
		if groupCol != "" && aggCol != "" {
			sql = fmt.Sprintf("SELECT %s, AVG(%s) as avg_%s FROM %s GROUP BY %s",
				groupCol, aggCol, aggCol, r.table, groupCol)
		} else if groupCol != "" {
			sql = fmt.Sprintf("SELECT %s, COUNT(*) as count FROM %s GROUP BY %s", groupCol, r.table, groupCol)
		}

	case strings.Contains(q, "where"):
		if col := firstColumn(q, cols); col != "" {
			sql = r.whereQuery(q, col)
		}
	}

	// Shortcuts for the two well-known business columns, only when no prior
	// rule produced a query.
	if sql == "" && containsAny(q, "age", "oldest", "youngest") {
		sql = r.ageShortcut(q)
	}
	if sql == "" && strings.Contains(q, "salary") {
		sql = r.salaryShortcut(q)
	}

	if sql == "" {
		sql = fmt.Sprintf("SELECT * FROM %s LIMIT 10", r.table)
	}
	return sql
}

// whereQuery builds a filtered select. The comparison value is the first
// integer literal in the request, defaulting to 0; a column mention without a
// comparison cue becomes an IS NOT NULL filter.
func (r *Rules) whereQuery(q, col string) string {
	value := "0"
	if m := intLiteral.FindString(q); m != "" {
		value = m
	}
	switch {
	case strings.Contains(q, "greater than") || strings.Contains(q, ">"):
		return fmt.Sprintf("SELECT * FROM %s WHERE %s > %s", r.table, col, value)
	case strings.Contains(q, "less than") || strings.Contains(q, "<"):
		return fmt.Sprintf("SELECT * FROM %s WHERE %s < %s", r.table, col, value)
	case strings.Contains(q, "equal") || strings.Contains(q, "="):
		return fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", r.table, col, value)
	default:
		return fmt.Sprintf("SELECT * FROM %s WHERE %s IS NOT NULL", r.table, col)
	}
}

func (r *Rules) ageShortcut(q string) string {
	switch {
	case strings.Contains(q, "average age") || strings.Contains(q, "mean age"):
		return fmt.Sprintf("SELECT AVG(age) as average_age FROM %s", r.table)
	case strings.Contains(q, "total age") || strings.Contains(q, "sum of age"):
		return fmt.Sprintf("SELECT SUM(age) as total_age FROM %s", r.table)
	case strings.Contains(q, "maximum age") || strings.Contains(q, "oldest"):
		return fmt.Sprintf("SELECT MAX(age) as max_age FROM %s", r.table)
	case strings.Contains(q, "minimum age") || strings.Contains(q, "youngest"):
		return fmt.Sprintf("SELECT MIN(age) as min_age FROM %s", r.table)
	}
	return ""
}

func (r *Rules) salaryShortcut(q string) string {
	switch {
	case strings.Contains(q, "average salary") || strings.Contains(q, "mean salary"):
		return fmt.Sprintf("SELECT AVG(salary) as average_salary FROM %s", r.table)
	case strings.Contains(q, "total salary") || strings.Contains(q, "sum of salary"):
		return fmt.Sprintf("SELECT SUM(salary) as total_salary FROM %s", r.table)
	case strings.Contains(q, "maximum salary") || strings.Contains(q, "highest salary"):
		return fmt.Sprintf("SELECT MAX(salary) as max_salary FROM %s", r.table)
	case strings.Contains(q, "minimum salary") || strings.Contains(q, "lowest salary"):
		return fmt.Sprintf("SELECT MIN(salary) as min_salary FROM %s", r.table)
	case strings.Contains(q, "salary by department") || strings.Contains(q, "salary per department"):
		return fmt.Sprintf("SELECT department, AVG(salary) as avg_salary FROM %s GROUP BY department ORDER BY avg_salary DESC", r.table)
	}
	return ""
}

func containsAny(q string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(q, s) {
			return true
		}
	}
	return false
}

func hasGroupBy(q string) bool {
	return strings.Contains(q, "group by") || strings.Contains(q, "grouped by")
}

// mentionsColumn reports whether the request names the column. Matching is on
// word boundaries, not bare substrings: the column "age" must not match
// inside the word "average".
func mentionsColumn(q, col string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(col)) + `\b`)
	return re.MatchString(q)
}

// firstColumn returns the first column name mentioned in the request.
func firstColumn(q string, cols []string) string {
	for _, col := range cols {
		if mentionsColumn(q, col) {
			return col
		}
	}
	return ""
}

// groupByColumns splits the request at the group-by phrase: the group column
// is the first one mentioned after it, the aggregated column the first one
// mentioned before it.
func groupByColumns(q string, cols []string) (groupCol, aggCol string) {
	idx := strings.Index(q, "group by")
	if idx < 0 {
		idx = strings.Index(q, "grouped by")
	}
	if idx < 0 {
		return "", ""
	}
	groupCol = firstColumn(q[idx:], cols)
	aggCol = firstColumn(q[:idx], cols)
	return groupCol, aggCol
}
