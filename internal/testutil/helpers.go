package testutil

import (
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

// RunConcurrent starts n workers at once and fails the test with the first
// error any of them returns. Panics are reported as errors.
func RunConcurrent(t *testing.T, n int, fn func(workerID int) error) {
	t.Helper()

	start := make(chan struct{})

	var g errgroup.Group
	for i := range n {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d panicked: %v", i, r)
				}
			}()

			<-start

			return fn(i)
		})
	}

	close(start)

	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent run failed: %v", err)
	}
}
