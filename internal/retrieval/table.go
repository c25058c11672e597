package retrieval

import (
	"fmt"
	"strings"
)

// Table is a rectangular view of heterogeneous records.
type Table struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// Normalize builds a table whose columns are the union of all record keys in
// first-seen order. Cells for keys a record lacks are empty strings.
func Normalize(records []*Record) *Table {
	var columns []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, f := range r.fields {
			if !seen[f.Key] {
				seen[f.Key] = true
				columns = append(columns, f.Key)
			}
		}
	}

	rows := make([][]Value, 0, len(records))
	for _, r := range records {
		row := make([]Value, len(columns))
		for i, col := range columns {
			if v, ok := r.Get(col); ok {
				row[i] = v
			} else {
				row[i] = StringValue("")
			}
		}
		rows = append(rows, row)
	}

	return &Table{Columns: columns, Rows: rows}
}

// Strings returns every row rendered as display strings.
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = v.String()
		}
		out[i] = cells
	}
	return out
}

// Markdown renders the table as a Markdown pipe table.
func (t *Table) Markdown() string {
	if len(t.Columns) == 0 {
		return ""
	}

	var b strings.Builder
	writeRow(&b, t.Columns)

	sep := make([]string, len(t.Columns))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&b, sep)

	for _, row := range t.Strings() {
		writeRow(&b, row)
	}
	return b.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(cellEscaper.Replace(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

// Summary renders the human-readable count summary for a retrieval.
func Summary(res *Result, ip string) string {
	if res.Empty() {
		return NoRecordsMessage(ip, res.Index)
	}
	return fmt.Sprintf("found %d records:\n\n%s", res.HitCount, res.Table().Markdown())
}

// NoRecordsMessage is the summary for a retrieval with zero hits.
func NoRecordsMessage(ip, index string) string {
	return fmt.Sprintf("no matching records found for IP %s in index %s", ip, index)
}
