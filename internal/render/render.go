// Package render writes evaluated forecasts as text tables, CSV or JSON.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/HerbHall/sleepcast/internal/predict"
	"github.com/HerbHall/sleepcast/internal/sheet"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown format %q: must be text, csv or json", s)
	}
}

// TimeLayout is weekday, month, day and 24-hour time, e.g. "Mon Oct 19, 23:05".
const TimeLayout = "Mon Jan 2, 15:04"

var rowHeader = []string{"Asleep at", "Awake at", "Sleep earliest", "Sleep latest", "Wake earliest", "Wake latest"}

// Write renders s in the requested format. tbl is only used by FormatJSON.
func Write(w io.Writer, f Format, tbl *predict.Table, s *sheet.Sheet) error {
	switch f {
	case FormatCSV:
		return CSV(w, s)
	case FormatJSON:
		return JSON(w, tbl, s)
	default:
		return Text(w, s)
	}
}

// Text writes the forecast rows and the parameter panel as two tables.
func Text(w io.Writer, s *sheet.Sheet) error {
	rows := tablewriter.NewWriter(w)
	rows.SetHeader(rowHeader)
	rows.SetAutoFormatHeaders(false)
	rows.SetAlignment(tablewriter.ALIGN_LEFT)
	rows.SetAutoWrapText(false)
	for _, r := range s.Rows {
		rows.Append(rowCells(r))
	}
	rows.Render()

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	panel := tablewriter.NewWriter(w)
	panel.SetHeader([]string{"Setting", "Value"})
	panel.SetAutoFormatHeaders(false)
	panel.SetAlignment(tablewriter.ALIGN_LEFT)
	panel.SetAutoWrapText(false)
	for _, kv := range panelCells(s) {
		panel.Append(kv)
	}
	panel.Render()
	return nil
}

// CSV writes one record per row followed by a blank record and the panel.
func CSV(w io.Writer, s *sheet.Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rowHeader); err != nil {
		return err
	}
	for _, r := range s.Rows {
		if err := cw.Write(rowCells(r)); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Setting", "Value"}); err != nil {
		return err
	}
	for _, kv := range panelCells(s) {
		if err := cw.Write(kv); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is the JSON form: the expression graph and its evaluation.
type Document struct {
	Cycle    predict.CycleParameters `json:"cycle"`
	Graph    *predict.Table          `json:"graph,omitempty"`
	Resolved *sheet.Sheet            `json:"resolved"`
}

// JSON writes the forecast as an indented Document.
func JSON(w io.Writer, tbl *predict.Table, s *sheet.Sheet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{Cycle: s.Cycle(), Graph: tbl, Resolved: s})
}

func rowCells(r sheet.Row) []string {
	return []string{
		FormatTime(r.ObservedSleep),
		FormatTime(r.ObservedWake),
		FormatTime(r.SleepEarliest),
		FormatTime(r.SleepLatest),
		FormatTime(r.WakeEarliest),
		FormatTime(r.WakeLatest),
	}
}

func panelCells(s *sheet.Sheet) [][]string {
	p := s.Panel
	return [][]string{
		{"Average over this many days", strconv.Itoa(p.Lookback)},
		{"Base uncertainty", FormatDuration(p.BaseUncertainty)},
		{"Daily uncertainty multiplier", strconv.FormatFloat(p.Growth, 'f', 2, 64)},
		{"Last recorded sleep", FormatTime(&p.LastSleep)},
		{"Start of sleep-averaging period", FormatTime(&p.WindowStartSleep)},
		{"Average time between sleeps", FormatDuration(p.AvgSleepInterval)},
		{"Last recorded wake", FormatTime(&p.LastWake)},
		{"Start of wake-averaging period", FormatTime(&p.WindowStartWake)},
		{"Average time between wakes", FormatDuration(p.AvgWakeInterval)},
		{"Average day length", FormatDuration(p.AvgDayLength)},
	}
}

// FormatTime renders t in UTC with TimeLayout, or "" for nil.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// FormatDuration renders d as [H]H:MM, rounding to the minute. Hours are
// not wrapped at 24.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Round(time.Minute)
	h := int64(d / time.Hour)
	m := int64((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%s%02d:%02d", sign, h, m)
}

// Periods writes the diary itself, one line per period, with the time
// asleep for closed periods.
func Periods(w io.Writer, periods []sleep.Period) error {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"ID", "Asleep at", "Awake at", "Slept", "Source"})
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoWrapText(false)
	for i := range periods {
		p := &periods[i]
		slept := ""
		if p.AwakeAt != nil {
			slept = FormatDuration(p.AwakeAt.Sub(p.AsleepAt))
		}
		t.Append([]string{p.ID, FormatTime(&p.AsleepAt), FormatTime(p.AwakeAt), slept, p.Source})
	}
	t.SetFooter([]string{"", "", "", "", fmt.Sprintf("%d periods", len(periods))})
	t.Render()
	return nil
}
