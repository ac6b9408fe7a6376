package ui

import (
	"errors"
	"fmt"
	"io"

	sync "remix-sync/internal/core/sync"
	"remix-sync/internal/task"
)

// RunPlain prints status changes and the final report as plain lines, for
// non-interactive terminals. It returns once the event stream closes.
func RunPlain(w io.Writer, events <-chan task.Event) (*sync.Run, error) {
	var (
		run     *sync.Run
		err     error
		percent = -1
	)
	for e := range events {
		switch e.Kind {
		case task.EventStatus:
			fmt.Fprintf(w, "[%3d%%] %s\n", max(percent, 0), e.Text)
		case task.EventProgress:
			percent = e.Percent
		case task.EventResult:
			run, _ = e.Value.(*sync.Run)
		case task.EventError:
			err = e.Err
			var re *sync.RunError
			if errors.As(err, &re) {
				run = re.Run
			}
		}
	}
	switch {
	case run != nil:
		fmt.Fprint(w, run.Report())
	case err != nil:
		fmt.Fprintf(w, "FAILED: %v\n", err)
	}
	return run, err
}
