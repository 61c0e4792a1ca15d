package worker

import (
	"context"
	"sort"
)

// IndexedJob wraps a job with its position in the input batch
type IndexedJob struct {
	Index int
	Job   Job
}

// Execute runs the wrapped job and tags the result with the job's index
func (j *IndexedJob) Execute(ctx context.Context) Result {
	return &IndexedResult{
		Index:  j.Index,
		Result: j.Job.Execute(ctx),
	}
}

// IndexedResult is a job result tagged with its input position
type IndexedResult struct {
	Index  int
	Result Result
}

// GetError returns the wrapped result's error
func (r *IndexedResult) GetError() error {
	if r.Result == nil {
		return nil
	}
	return r.Result.GetError()
}

// OrderedBatch runs jobs on a bounded pool and returns results in input order.
// When ctx is cancelled no further jobs are started; the returned slice then
// holds only the jobs that completed, still in input order, and the error is ctx.Err().
type OrderedBatch struct {
	workers int
}

// NewOrderedBatch creates a batch runner with the given worker count
func NewOrderedBatch(workers int) *OrderedBatch {
	return &OrderedBatch{workers: workers}
}

// Run executes all jobs
func (b *OrderedBatch) Run(ctx context.Context, jobs []Job) ([]*IndexedResult, error) {
	if len(jobs) == 0 {
		return []*IndexedResult{}, nil
	}

	pool := NewPool(ctx, b.workers)
	pool.Start()

	for i, job := range jobs {
		if !pool.Submit(&IndexedJob{Index: i, Job: job}) {
			break
		}
	}

	results := pool.Wait()

	ordered := make([]*IndexedResult, 0, len(results))
	for _, r := range results {
		ordered = append(ordered, r.(*IndexedResult))
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	if ctx != nil && ctx.Err() != nil {
		return ordered, ctx.Err()
	}
	return ordered, nil
}
