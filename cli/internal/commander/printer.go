/*
Copyright 2020 GramLabs, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commander

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

const (
	// PrinterAllowedFormats is the annotation for restricting the output formats
	// of a command, a comma-delimited list (e.g. to allow only JSON and YAML).
	PrinterAllowedFormats = "allowedFormats"
	// PrinterOutputFormat is the annotation for the default output format of a
	// command, it must be one of the allowed formats.
	PrinterOutputFormat = "outputFormat"
	// PrinterColumns is the annotation for a comma-delimited list of columns
	// displayed by the row formats instead of the defaults.
	PrinterColumns = "columns"
	// PrinterNoHeader is the annotation for suppressing the header row.
	PrinterNoHeader = "noHeader"
	// PrinterShowLabels is the annotation for showing the schedule knobs.
	PrinterShowLabels = "showLabels"
)

// ResourcePrinter formats an object to a byte stream
type ResourcePrinter interface {
	// PrintObj formats the specified object to the specified writer
	PrintObj(interface{}, io.Writer) error
}

// TableMeta is used to inspect objects for formatting
type TableMeta interface {
	// ExtractList accepts a single object (which possibly represents a list) and returns a slice to iterate over; this
	// should include a single element slice from the input object if it does not represent a list
	ExtractList(obj interface{}) ([]interface{}, error)
	// Columns returns the default list of columns to render for a given object
	Columns(obj interface{}, outputFormat string, showLabels bool) []string
	// ExtractValue returns the column string value for a given object from the extract list result
	ExtractValue(obj interface{}, column string) (string, error)
	// Header returns the header value to use for a column
	Header(outputFormat string, column string) string
}

// NoPrinterError is an error occurring when no suitable printer is available
type NoPrinterError struct {
	// OutputFormat is the requested output format
	OutputFormat string
	// AllowedFormats are the available output formats
	AllowedFormats []string
}

// Error returns a useful message for a "no printer" error
func (e NoPrinterError) Error() string {
	allowed := append([]string(nil), e.AllowedFormats...)
	sort.Strings(allowed)
	return fmt.Sprintf("no printer for %s, allowed formats are: %s", e.OutputFormat, strings.Join(allowed, ","))
}

// rowFormats are the formats rendered row by row from a TableMeta
var rowFormats = []string{"", "wide", "name", "csv", "markdown"}

func isRowFormat(outputFormat string) bool {
	for _, f := range rowFormats {
		if f == outputFormat {
			return true
		}
	}
	return false
}

// printFlags are the options for creating a printer
type printFlags struct {
	allowedFormats []string
	outputFormat   string
	meta           TableMeta
	columns        []string
	noHeader       bool
	showLabels     bool
}

func splitList(s string) []string {
	var result []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// newPrintFlags returns print flags initialized from the command annotations
func newPrintFlags(meta TableMeta, annotations map[string]string) *printFlags {
	pf := &printFlags{meta: meta, columns: splitList(annotations[PrinterColumns])}
	pf.noHeader, _ = strconv.ParseBool(annotations[PrinterNoHeader])
	pf.showLabels, _ = strconv.ParseBool(annotations[PrinterShowLabels])

	allowed := []string{"json", "yaml"}
	if meta != nil {
		allowed = append(append([]string(nil), rowFormats...), allowed...)
	}
	if restricted := splitList(strings.ToLower(annotations[PrinterAllowedFormats])); len(restricted) > 0 {
		allowed = restricted
	}

	outputFormat := strings.ToLower(annotations[PrinterOutputFormat])
	seen := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		if seen[f] || (meta == nil && isRowFormat(f)) {
			continue
		}
		seen[f] = true
		pf.allowedFormats = append(pf.allowedFormats, f)
	}
	if seen[outputFormat] {
		pf.outputFormat = outputFormat
	}
	if len(pf.allowedFormats) == 1 {
		pf.outputFormat = pf.allowedFormats[0]
	}
	return pf
}

// addFlags adds command line flags for configuring the printer
func (f *printFlags) addFlags(cmd *cobra.Command) {
	if len(f.allowedFormats) > 1 {
		cmd.Flags().StringVarP(&f.outputFormat, "output", "o", f.outputFormat, "output `format`")
		SetFlagValues(cmd, "output", f.allowedFormats...)
	}

	for _, allowedFormat := range f.allowedFormats {
		if isRowFormat(allowedFormat) {
			cmd.Flags().BoolVar(&f.noHeader, "no-headers", f.noHeader, "don't print headers")
			cmd.Flags().BoolVar(&f.showLabels, "show-labels", f.showLabels, "when printing, show schedule knobs as the last column")
			return
		}
	}
}

// toPrinter generates a new printer for the selected output format
func (f *printFlags) toPrinter(printer *ResourcePrinter) error {
	outputFormat := strings.ToLower(f.outputFormat)
	allowed := false
	for _, allowedFormat := range f.allowedFormats {
		allowed = allowed || allowedFormat == outputFormat
	}
	if !allowed {
		return NoPrinterError{OutputFormat: f.outputFormat, AllowedFormats: f.allowedFormats}
	}

	p := &rowPrinter{
		meta:         f.meta,
		columns:      f.columns,
		headers:      !f.noHeader,
		showLabels:   f.showLabels,
		outputFormat: outputFormat,
	}
	switch outputFormat {
	case "json", "yaml":
		*printer = &marshalPrinter{outputFormat: outputFormat}
		return nil
	case "name":
		p.columns = []string{"name"}
		p.headers = false
		p.newWriter = newTableWriter
	case "csv":
		// CSV always uses the full column list so it is stable for other tools
		p.columns = nil
		p.newWriter = newCSVWriter
	case "markdown":
		p.newWriter = newMarkdownWriter
	default:
		p.newWriter = newTableWriter
	}
	*printer = p
	return nil
}

// marshalPrinter is a printer that generates output using a generic encoding
type marshalPrinter struct {
	// outputFormat is either "yaml" or "json"
	outputFormat string
}

// PrintObj will marshal the supplied object
func (p *marshalPrinter) PrintObj(obj interface{}, w io.Writer) error {
	if p.outputFormat == "yaml" {
		output, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		_, err = w.Write(output)
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(obj)
}

// rowWriter receives the rows of a printed object
type rowWriter interface {
	WriteHeader(row []string) error
	WriteRow(row []string) error
	Flush() error
}

// rowPrinter generates one row per listed object using a format specific writer
type rowPrinter struct {
	meta         TableMeta
	columns      []string
	headers      bool
	showLabels   bool
	outputFormat string
	newWriter    func(io.Writer) rowWriter
}

// PrintObj generates the rows
func (p *rowPrinter) PrintObj(obj interface{}, w io.Writer) error {
	rows, err := p.meta.ExtractList(obj)
	if err != nil {
		return err
	}
	if len(rows) == 0 && p.outputFormat != "csv" {
		_, err = fmt.Fprintln(w, "No results found.")
		return err
	}

	columns := p.columns
	if len(columns) == 0 {
		columns = p.meta.Columns(obj, p.outputFormat, p.showLabels)
	}

	rw := p.newWriter(w)
	buf := make([]string, len(columns))
	if p.headers {
		for i := range columns {
			buf[i] = p.meta.Header(p.outputFormat, columns[i])
		}
		if err := rw.WriteHeader(buf); err != nil {
			return err
		}
	}

	for _, row := range rows {
		for i := range columns {
			if buf[i], err = p.meta.ExtractValue(row, columns[i]); err != nil {
				return err
			}
		}
		if err := rw.WriteRow(buf); err != nil {
			return err
		}
	}

	return rw.Flush()
}

// tableWriter aligns columns using a tab writer
type tableWriter struct{ tw *tabwriter.Writer }

func newTableWriter(w io.Writer) rowWriter {
	return &tableWriter{tw: tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)}
}

func (t *tableWriter) WriteHeader(row []string) error { return t.WriteRow(row) }

func (t *tableWriter) WriteRow(row []string) error {
	// A single column has no padding or trailing tab
	if len(row) == 1 {
		_, err := fmt.Fprintln(t.tw, row[0])
		return err
	}
	_, err := fmt.Fprintf(t.tw, "%s\t\n", strings.Join(row, "\t"))
	return err
}

func (t *tableWriter) Flush() error { return t.tw.Flush() }

// csvWriter generates Comma Separated Value (CSV) records
type csvWriter struct{ cw *csv.Writer }

func newCSVWriter(w io.Writer) rowWriter { return &csvWriter{cw: csv.NewWriter(w)} }

func (c *csvWriter) WriteHeader(row []string) error { return c.cw.Write(row) }

func (c *csvWriter) WriteRow(row []string) error { return c.cw.Write(row) }

func (c *csvWriter) Flush() error {
	c.cw.Flush()
	return c.cw.Error()
}

// markdownWriter generates a GitHub flavored Markdown table
type markdownWriter struct{ w io.Writer }

func newMarkdownWriter(w io.Writer) rowWriter { return &markdownWriter{w: w} }

func (m *markdownWriter) WriteHeader(row []string) error {
	if err := m.WriteRow(row); err != nil {
		return err
	}
	sep := make([]string, len(row))
	for i := range sep {
		sep[i] = "---"
	}
	return m.WriteRow(sep)
}

func (m *markdownWriter) WriteRow(row []string) error {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = strings.ReplaceAll(c, "|", "\\|")
	}
	_, err := fmt.Fprintf(m.w, "| %s |\n", strings.Join(cells, " | "))
	return err
}

func (m *markdownWriter) Flush() error { return nil }
