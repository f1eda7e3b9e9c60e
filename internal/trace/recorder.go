// internal/trace/recorder.go

package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"rtkern/internal/kernel"
)

// totals is what the summary reports per task.
type totals struct {
	name        string
	dispatches  int64
	preemptions int64
	yields      int64
	suspends    int64
}

// Recorder prints kernel events, optionally mirrors them to CSV and keeps
// per-task totals.
type Recorder struct {
	mu     sync.Mutex
	out    io.Writer
	quiet  map[kernel.EventKind]bool
	totals *treemap.Map // int handle -> *totals

	// logging-related
	csvFile   *os.File
	csvWriter *csv.Writer
}

// NewRecorder writes event lines to out; nil out records totals only.
func NewRecorder(out io.Writer) *Recorder {
	return &Recorder{
		out:    out,
		quiet:  map[kernel.EventKind]bool{},
		totals: treemap.NewWith(utils.IntComparator),
	}
}

// Mute stops printing the given event kinds. They are still counted and
// written to CSV.
func (r *Recorder) Mute(kinds ...kernel.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		r.quiet[k] = true
	}
}

// EnableCSV opens the given file path for CSV logging of events.
// Must be called before the kernel runs.
func (r *Recorder) EnableCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"step", "tick", "round", "slot", "event", "task_id", "task", "priority", "state"}); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	r.csvFile = f
	r.csvWriter = w
	return nil
}

// Observe is a kernel observer.
func (r *Recorder) Observe(ev kernel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count(ev)

	if r.out != nil && !r.quiet[ev.Kind] {
		fmt.Fprintln(r.out, Format(ev))
	}

	// CSV output
	if r.csvWriter != nil {
		rec := []string{
			strconv.FormatUint(ev.Step, 10),
			strconv.FormatUint(ev.Tick, 10),
			strconv.FormatUint(ev.Round, 10),
			strconv.Itoa(ev.Slot),
			ev.Kind.String(),
			strconv.Itoa(int(ev.Task)),
			ev.Name,
			strconv.FormatUint(uint64(ev.Priority), 10),
			ev.State.String(),
		}
		r.csvWriter.Write(rec)
		r.csvWriter.Flush()
	}
}

func (r *Recorder) count(ev kernel.Event) {
	if ev.Task == kernel.NoTask {
		return
	}
	var t *totals
	if v, ok := r.totals.Get(int(ev.Task)); ok {
		t = v.(*totals)
	} else {
		t = &totals{name: ev.Name}
		r.totals.Put(int(ev.Task), t)
	}
	switch ev.Kind {
	case kernel.EventDispatch:
		t.dispatches++
	case kernel.EventPreempt:
		t.preemptions++
	case kernel.EventYield:
		t.yields++
	case kernel.EventSuspend:
		t.suspends++
	}
}

// Summary writes one line per task, in handle order.
func (r *Recorder) Summary(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it := r.totals.Iterator()
	for it.Next() {
		t := it.Value().(*totals)
		fmt.Fprintf(w, "Task: %04d %-16s dispatched=%d preempted=%d yielded=%d suspended=%d\n",
			it.Key().(int), t.name, t.dispatches, t.preemptions, t.yields, t.suspends)
	}
}

// Close flushes and closes the CSV file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.csvFile == nil {
		return nil
	}
	r.csvWriter.Flush()
	err := r.csvWriter.Error()
	if cerr := r.csvFile.Close(); err == nil {
		err = cerr
	}
	r.csvFile, r.csvWriter = nil, nil
	return err
}

// Format renders an event as one fixed-width line.
func Format(ev kernel.Event) string {
	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := (width - len(str)) / 2
		if spaces < 0 {
			spaces = 0
		}
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", max(0, width-(spaces+len(str))))
	}

	if ev.Task == kernel.NoTask {
		return fmt.Sprintf("Step: %07d Tick: %07d [%s] => Round: %d",
			ev.Step, ev.Tick, center(ev.Kind.String(), 12), ev.Round)
	}
	return fmt.Sprintf("Step: %07d Tick: %07d [%s] => Task: %04d %-16s prio=%-3d state=%s",
		ev.Step, ev.Tick, center(ev.Kind.String(), 12), ev.Task, ev.Name, ev.Priority, ev.State)
}
