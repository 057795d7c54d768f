package cli

import (
	"encoding/json"
	"io"

	"github.com/olekukonko/tablewriter"
)

// output writes data as indented JSON or hands w to the text renderer.
func output(w io.Writer, format string, data any, text func(io.Writer) error) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(w)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}
