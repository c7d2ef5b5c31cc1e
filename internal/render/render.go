// Package render writes entity lists for the command line.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goforj/normcache"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// DefaultColumns are the attributes shown for a user row.
var DefaultColumns = []string{"name", "created_at"}

// ParseFormat accepts "table" (or "") and "json".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Entities writes rows in list order. Table output has an ID column followed by one
// column per attribute in columns.
func Entities(w io.Writer, rows iter.Seq[normcache.Entity], columns []string, format Format) error {
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	switch format {
	case FormatJSON:
		return writeJSON(w, rows, columns)
	case FormatTable, "":
		return writeTable(w, rows, columns)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTable(w io.Writer, rows iter.Seq[normcache.Entity], columns []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"ID"}
	for _, c := range columns {
		header = append(header, strings.ToUpper(c))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for e := range rows {
		cells := []string{e.ID}
		for _, c := range columns {
			cells = append(cells, cell(e, c))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, rows iter.Seq[normcache.Entity], columns []string) error {
	out := make([]map[string]any, 0)
	for e := range rows {
		row := map[string]any{"id": e.ID}
		for _, c := range columns {
			if v, ok := e.Attr(c); ok {
				row[c] = v
			}
		}
		out = append(out, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// cell formats timestamps in local time; everything else prints as stored.
func cell(e normcache.Entity, column string) string {
	s := e.String(column)
	if strings.HasSuffix(column, "_at") {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.Local().Format("2006-01-02 15:04:05")
		}
	}
	return s
}
