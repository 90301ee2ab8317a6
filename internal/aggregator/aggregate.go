package aggregator

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/pkg/types"
)

// Options configures an Aggregate call.
type Options struct {
	Key   KeyExtractor
	Specs []AggregateSpec // extra aggregates; the benchmark defaults are always computed

	// MapTasks is the number of shards in the partial phase (default 1)
	MapTasks int

	// ShufflePartitions is the number of reducers in the merge phase (default 1)
	ShufflePartitions int

	// Parallel runs map tasks and reducers concurrently
	Parallel bool

	// Concurrency bounds concurrent tasks when Parallel is set (default GOMAXPROCS)
	Concurrency int
}

// Group is the final aggregate for one key.
type Group struct {
	Key          string             `json:"key"`
	TripCount    int64              `json:"trip_count"`
	AvgDistance  float64            `json:"avg_distance"`
	TotalRevenue float64            `json:"total_revenue"`
	Values       map[string]float64 `json:"values,omitempty"`
}

// ExecStats describes how an aggregation was executed.
type ExecStats struct {
	MapTasks       int   `json:"map_tasks"`
	ReduceTasks    int   `json:"reduce_tasks"`
	ShuffleBytes   int64 `json:"shuffle_bytes"`
	RecordsPerTask []int `json:"records_per_task"`
	StageCount     int   `json:"stage_count"`
}

// Result is the output of Aggregate.
type Result struct {
	KeyName string    `json:"key_name"`
	Specs   []string  `json:"specs"`
	Groups  []Group   `json:"groups"`
	Stats   ExecStats `json:"stats"`
}

// Lookup returns the group with the given key.
func (r *Result) Lookup(key string) (Group, bool) {
	for _, g := range r.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return Group{}, false
}

// Aggregate groups set by opts.Key and reduces it in two phases. The result
// is identical for every MapTasks and ShufflePartitions value and for
// parallel or sequential execution.
func Aggregate(ctx context.Context, set types.RecordSet, opts Options) (*Result, error) {
	if opts.Key.Fn == nil {
		return nil, fmt.Errorf("aggregator: no key extractor")
	}
	for _, s := range opts.Specs {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("aggregator: %w", err)
		}
	}
	if opts.MapTasks < 1 {
		opts.MapTasks = 1
	}
	if opts.ShufflePartitions < 1 {
		opts.ShufflePartitions = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	specs := withDefaults(opts.Specs)

	// Phase (a): partial reduction, one disjoint map per task.
	shards := set.Shards(opts.MapTasks)
	mapOutputs := make([]map[GroupKey]*GroupedPartial, len(shards))
	err := runTasks(ctx, len(shards), opts.Parallel, opts.Concurrency, func(i int) error {
		mapOutputs[i] = ComputeGroupedPartials(shards[i], opts.Key, specs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	shuffled, err := shuffle(mapOutputs, opts.ShufflePartitions)
	if err != nil {
		return nil, err
	}

	// Phase (b): each reducer merges the blocks routed to it. Reducers own
	// disjoint key sets.
	merger := NewGroupByMerger(specs)
	reduceOutputs := make([]map[GroupKey]*GroupedPartial, opts.ShufflePartitions)
	err = runTasks(ctx, opts.ShufflePartitions, opts.Parallel, opts.Concurrency, func(r int) error {
		inbound := make([]map[GroupKey]*GroupedPartial, 0, len(shuffled.blocks[r]))
		for _, block := range shuffled.blocks[r] {
			groups, err := decodeBlock(block)
			if err != nil {
				return tberrors.NewInternalError(fmt.Sprintf("aggregator: reducer %d: decode shuffle block", r), err)
			}
			inbound = append(inbound, groups)
		}
		reduceOutputs[r] = merger.MergeGroupedPartials(inbound)
		return nil
	})
	if err != nil {
		return nil, err
	}

	final := make(map[GroupKey]*GroupedPartial)
	for _, out := range reduceOutputs {
		for k, gp := range out {
			final[k] = gp
		}
	}

	perTask := make([]int, len(shards))
	for i, s := range shards {
		perTask[i] = len(s)
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name()
	}

	return &Result{
		KeyName: opts.Key.Name,
		Specs:   names,
		Groups:  merger.ToGroups(final),
		Stats: ExecStats{
			MapTasks:       len(shards),
			ReduceTasks:    opts.ShufflePartitions,
			ShuffleBytes:   shuffled.bytes,
			RecordsPerTask: perTask,
			StageCount:     2,
		},
	}, nil
}

// runTasks runs fn for 0..n-1, sequentially or bounded by a semaphore. The
// first error wins; ctx is checked before each task.
func runTasks(ctx context.Context, n int, parallel bool, concurrency int, fn func(int) error) error {
	if !parallel {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, n)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}

			errs[idx] = fn(idx)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
