package explain

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-cascades/cascades"
)

// TableFormatter renders executor rows as markdown tables.
type TableFormatter struct {
	// MaxWidth is the maximum width of a cell. Zero disables truncation.
	MaxWidth int
	// TruncateString is appended to truncated cells.
	TruncateString string
	// Columns names the columns of tuple rows. Missing names default to
	// the column position.
	Columns []string
}

// NewTableFormatter creates a formatter with default settings.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// Format renders rows as a markdown table followed by a row count. Records
// get one column per field, index entries one per key and primary key
// field, and tuples one per position.
func (tf *TableFormatter) Format(rows []cascades.Value) string {
	if len(rows) == 0 {
		return "_No rows_"
	}
	headers := tf.headers(rows)

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = tf.cells(headers, row)
		for j := range cells[i] {
			cells[i][j] = tf.truncate(cells[i][j])
		}
	}
	sb := &strings.Builder{}
	if err := WriteTable(sb, headers, cells); err != nil {
		return fmt.Sprintf("_%v_", err)
	}
	fmt.Fprintf(sb, "\n_%d rows_\n", len(rows))
	return sb.String()
}

// WriteTable renders a markdown table of string cells to w.
func WriteTable(w io.Writer, headers []string, rows [][]string) error {
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func (tf *TableFormatter) headers(rows []cascades.Value) []string {
	switch rows[0].(type) {
	case *cascades.Record, *cascades.QueriedRecord:
		seen := make(map[string]bool)
		var fields []string
		multiType := false
		for _, row := range rows {
			r := asRecord(row)
			if r == nil {
				continue
			}
			if r.Type != asRecord(rows[0]).Type {
				multiType = true
			}
			for f := range r.Fields {
				if !seen[f] {
					seen[f] = true
					fields = append(fields, f)
				}
			}
		}
		sort.Strings(fields)
		if multiType {
			fields = append([]string{"type"}, fields...)
		}
		return fields
	case *cascades.IndexEntry:
		e := rows[0].(*cascades.IndexEntry)
		return append(append([]string(nil), e.KeyFields...), e.PrimaryKeyFields...)
	}
	width := 1
	for _, row := range rows {
		if t, ok := row.(cascades.Tuple); ok && len(t) > width {
			width = len(t)
		}
	}
	headers := make([]string, width)
	for i := range headers {
		if i < len(tf.Columns) {
			headers[i] = tf.Columns[i]
		} else {
			headers[i] = fmt.Sprintf("#%d", i)
		}
	}
	return headers
}

func (tf *TableFormatter) cells(headers []string, row cascades.Value) []string {
	out := make([]string, len(headers))
	switch v := row.(type) {
	case *cascades.Record, *cascades.QueriedRecord:
		r := asRecord(v)
		for i, h := range headers {
			if f, ok := r.Fields[h]; ok {
				out[i] = tf.formatValue(f)
			} else if h == "type" {
				out[i] = r.Type
			}
		}
	case *cascades.IndexEntry:
		for i, h := range headers {
			if f, ok := v.Get(h); ok {
				out[i] = tf.formatValue(f)
			}
		}
	case cascades.Tuple:
		for i := range out {
			if i < len(v) {
				out[i] = tf.formatValue(v[i])
			}
		}
	default:
		out[0] = tf.formatValue(v)
	}
	return out
}

func asRecord(v cascades.Value) *cascades.Record {
	switch r := v.(type) {
	case *cascades.Record:
		return r
	case *cascades.QueriedRecord:
		return r.Record
	}
	return nil
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 || len(s) <= tf.MaxWidth {
		return s
	}
	keep := tf.MaxWidth - len(tf.TruncateString)
	if keep < 0 {
		keep = 0
	}
	return s[:keep] + tf.TruncateString
}

func (tf *TableFormatter) formatValue(val cascades.Value) string {
	switch v := val.(type) {
	case nil:
		return "nil"
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%.2f", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return cascades.FormatValue(v)
	}
}

// FormatRows renders rows with a default formatter.
func FormatRows(rows []cascades.Value, columns ...string) string {
	tf := NewTableFormatter()
	tf.Columns = columns
	return tf.Format(rows)
}
