package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/forPelevin/vertclip/internal/render"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rounded boxes on a terminal and plain ASCII elsewhere so
// piped output stays greppable.
func renderTable(w io.Writer, headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if isTerminal(w) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var jobHeaders = []string{"#", "Start", "End", "Score", "Attempt", "Status", "Output"}

var jobAligns = []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft}

func renderOutcomes(w io.Writer, outcomes []render.Outcome) string {
	jobs := make([]*render.Job, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Job != nil {
			jobs = append(jobs, o.Job)
		}
	}
	return renderJobs(w, jobs)
}

func renderJobs(w io.Writer, jobs []*render.Job) string {
	rows := make([][]string, 0, len(jobs))
	for i, j := range jobs {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			clock(j.Clip.Start),
			clock(j.Clip.End),
			fmt.Sprintf("%.2f", j.Clip.Score),
			fmt.Sprint(j.Attempt),
			jobState(j),
			filepath.Base(j.Output),
		})
	}
	return renderTable(w, jobHeaders, rows, jobAligns)
}

func jobState(j *render.Job) string {
	switch {
	case j.Done():
		return "done"
	case j.Failed():
		return fmt.Sprintf("failed at %s: %s", j.FailedStage, j.Reason)
	}
	if next, ok := j.Next(); ok {
		return "pending " + string(next)
	}
	return "pending"
}

var attemptHeaders = []string{"Clip", "Attempt", "Status", "Error", "Updated"}

var attemptAligns = []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft}

func renderAttempts(w io.Writer, history [][]*render.Job) string {
	var rows [][]string
	for _, attempts := range history {
		for _, j := range attempts {
			rows = append(rows, []string{
				j.Clip.ID,
				fmt.Sprint(j.Attempt),
				jobState(j),
				j.Error,
				j.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			})
		}
	}
	return renderTable(w, attemptHeaders, rows, attemptAligns)
}

// clock formats a source offset as m:ss.t.
func clock(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	m := int(d / time.Minute)
	s := (d % time.Minute).Seconds()
	return fmt.Sprintf("%d:%04.1f", m, s)
}
