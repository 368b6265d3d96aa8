package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/stackvity/book-converter/pkg/converter"
)

// maxListedErrors bounds the error table of the text summary.
const maxListedErrors = 20

// WriteSummary prints the run report as a table or as JSON.
func WriteSummary(w io.Writer, report converter.Report, format converter.OutputFormat) error {
	if format == converter.OutputFormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := io.WriteString(w, renderSummary(report))
	return err
}

func renderSummary(r converter.Report) string {
	s := r.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "Book conversion: %s\n", summaryState(s))

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendRows([]table.Row{
		{"Source", s.InputPath},
		{"Output", s.OutputPath},
		{"Languages", joinOrDash(s.Languages)},
		{"Extensions", joinOrDash(s.Extensions)},
		{"Converted", s.ProcessedCount},
		{"From cache", s.CachedCount},
		{"Skipped", s.SkippedCount},
		{"Errors", s.ErrorCount},
		{"Duration", (time.Duration(s.DurationSeconds * float64(time.Second))).Round(time.Millisecond).String()},
		{"Run ID", s.RunID},
	})
	if s.ProfileUsed != "" {
		tw.AppendRow(table.Row{"Profile", s.ProfileUsed})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})
	b.WriteString(tw.Render())
	b.WriteString("\n")

	if len(r.Errors) > 0 {
		et := table.NewWriter()
		et.SetStyle(table.StyleRounded)
		et.Style().Format.Footer = text.FormatDefault
		et.AppendHeader(table.Row{"Path", "Error", "Fatal"})
		for i, e := range r.Errors {
			if i == maxListedErrors {
				et.AppendFooter(table.Row{fmt.Sprintf("... %d more", len(r.Errors)-i), "", ""})
				break
			}
			et.AppendRow(table.Row{e.Path, e.Error, strconv.FormatBool(e.IsFatal)})
		}
		et.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 80}})
		b.WriteString(et.Render())
		b.WriteString("\n")
	}
	return b.String()
}

func summaryState(s converter.ReportSummary) string {
	switch {
	case s.Cancelled:
		return "cancelled"
	case s.FatalErrorOccurred:
		return "failed"
	case s.ErrorCount > 0:
		return "completed with errors"
	}
	return "completed"
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
