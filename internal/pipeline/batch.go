package pipeline

import (
	"context"
	"sync"

	"github.com/hauke96/sigolo/v2"
)

// Result is the outcome of one AOI's full-chain run.
type Result struct {
	Name   string
	Output string
	Err    error
}

// RunBatch processes the named AOIs through the full chain with a worker
// pool of the configured size. One AOI's failure never stops the others;
// results keep the input order.
func (p *Pipeline) RunBatch(ctx context.Context, names []string) []Result {
	results := make([]Result, len(names))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out, err := p.ProcessAOI(ctx, names[i])
				results[i] = Result{Name: names[i], Output: out, Err: err}
			}
		}()
	}
	for i := range names {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	logSummary(results)
	return results
}

// Failed returns the names of the AOIs that did not complete.
func Failed(results []Result) []string {
	var names []string
	for _, r := range results {
		if r.Err != nil {
			names = append(names, r.Name)
		}
	}
	return names
}

func logSummary(results []Result) {
	failed := Failed(results)
	sigolo.Infof("batch finished: %d succeeded, %d failed", len(results)-len(failed), len(failed))
	for _, r := range results {
		if r.Err != nil {
			sigolo.Warnf("skipped %s: %v", r.Name, r.Err)
		}
	}
}
