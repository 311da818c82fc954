// Command softscore scores judge-model replies into discrete and
// probability-weighted rubric scores, offline from recorded replies or live
// against a judge provider.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes.
const (
	ExitSuccess     = 0
	ExitItemsFailed = 1 // the run completed but some items could not be scored
	ExitError       = 2 // configuration or runtime error
)

// ItemFailureError reports that a run completed with failed items.
type ItemFailureError struct {
	Failed int
	Total  int
}

func (e *ItemFailureError) Error() string {
	return fmt.Sprintf("%d of %d items could not be scored", e.Failed, e.Total)
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var itemErr *ItemFailureError
		if errors.As(err, &itemErr) {
			os.Exit(ExitItemsFailed)
		}
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}
