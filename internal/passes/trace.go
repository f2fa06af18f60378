package passes

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// TraceRow is one attempted rewrite, per §7's "one line per attempted
// rewrite with outcome" structured trace.
type TraceRow struct {
	RunID     string
	Pass      string
	Rewrite   string
	Function  string
	Target    string
	Applied   bool
	Detail    string
}

// Trace accumulates rows across a whole Manager.Run invocation. It is
// optional: passing a nil *Trace to a pass's Run means "don't bother
// recording"; the passes' record helper then drops each row, although
// the detail strings the passes pass to it are still built.
type Trace struct {
	runID string
	rows  []TraceRow
	pass  string
}

func NewTrace() *Trace {
	return &Trace{runID: uuid.New().String()}
}

func (t *Trace) BeginPass(name string) {
	t.pass = name
}

// Record appends a row. It must be called on a non-nil Trace; callers
// that want to skip expensive detail strings must check t != nil before
// building them.
func (t *Trace) Record(rewrite, fn, target string, applied bool, detail string) {
	t.rows = append(t.rows, TraceRow{
		RunID: t.runID, Pass: t.pass, Rewrite: rewrite,
		Function: fn, Target: target, Applied: applied, Detail: detail,
	})
}

func (t *Trace) Rows() []TraceRow { return t.rows }

// Print renders the trace as a table, coloring the pass name column so a
// terminal reader can scan for which pass touched what — the same
// tablewriter/color pairing _examples/ProbeChain-go-probe uses for its own
// diagnostic output.
func (t *Trace) Print(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"pass", "rewrite", "function", "target", "applied", "detail"})
	passColor := color.New(color.FgCyan).SprintFunc()
	appliedColor := color.New(color.FgGreen).SprintFunc()
	skippedColor := color.New(color.FgYellow).SprintFunc()
	for _, row := range t.rows {
		applied := skippedColor("skip")
		if row.Applied {
			applied = appliedColor("applied")
		}
		table.Append([]string{
			passColor(row.Pass), row.Rewrite, row.Function, row.Target, applied, row.Detail,
		})
	}
	table.Render()
	fmt.Fprintf(w, "run %s: %d rewrite attempts\n", t.runID, len(t.rows))
}
