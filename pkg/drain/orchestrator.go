/*
Copyright 2026 The knode Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package drain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/knode-cli/knode/pkg/cordon"
	"github.com/knode-cli/knode/pkg/inventory"
)

// Cordoner toggles a node's schedulable flag.
type Cordoner interface {
	SetSchedulable(ctx context.Context, nodeName string, schedulable bool) error
}

// Drainer drains a single node's workload.
type Drainer interface {
	Drain(ctx context.Context, nodeName string, sink Sink) NodeResult
}

// Options tunes a drain batch.
type Options struct {
	// IgnoreErrors keeps attempting remaining nodes past per-node
	// failures. When false, the first failed node halts submission of
	// further nodes; nodes already running finish.
	IgnoreErrors bool
	// Concurrency bounds how many nodes drain at once.
	Concurrency int
	// Sink receives pod-level progress events from every node.
	Sink Sink
	// OnNodeDone, when set, is called once per target as its result is
	// recorded. Calls may come from concurrent goroutines.
	OnNodeDone func(NodeResult)
}

func (o Options) notify(res NodeResult) {
	if o.OnNodeDone != nil {
		o.OnNodeDone(res)
	}
}

// DefaultConcurrency bounds parallel node drains unless overridden.
const DefaultConcurrency = 4

// ErrBatchFailed reports that at least one node did not drain fully.
var ErrBatchFailed = errors.New("drain batch failed")

// Orchestrator coordinates cordon + drain across a set of target nodes.
type Orchestrator struct {
	cordoner Cordoner
	drainer  Drainer
}

// NewOrchestrator wires a cordoner and a per-node drainer together.
func NewOrchestrator(c Cordoner, d Drainer) *Orchestrator {
	return &Orchestrator{cordoner: c, drainer: d}
}

// Run drains the targets with bounded concurrency. Each node is cordoned
// immediately before its own drain begins, independently per node, so one
// node's cordon failure never blocks another's drain. Results come back in
// the original target order regardless of completion order.
//
// The returned error is non-nil when the batch as a whole must be treated
// as failed: any failure with IgnoreErrors unset, or a permission failure
// regardless of IgnoreErrors.
func (o *Orchestrator) Run(ctx context.Context, targets []inventory.Node, opts Options) ([]NodeResult, error) {
	logger := klog.FromContext(ctx)
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	// Per-target slots double as the final ordering: no re-sort needed.
	results := make([]NodeResult, len(targets))
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup
	var halt atomic.Bool
	var forbidden atomic.Bool

	for i, target := range targets {
		if halt.Load() || ctx.Err() != nil {
			results[i] = NodeResult{Node: target.Name, State: Cancelled, Cancelled: true}
			opts.notify(results[i])
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = NodeResult{Node: target.Name, State: Cancelled, Cancelled: true}
			opts.notify(results[i])
			continue
		}

		if halt.Load() {
			<-sem
			results[i] = NodeResult{Node: target.Name, State: Cancelled, Cancelled: true}
			opts.notify(results[i])
			continue
		}

		wg.Add(1)
		go func(i int, nodeName string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := o.cordoner.SetSchedulable(ctx, nodeName, false); err != nil {
				logger.Error(err, "Cordon failed", "node", nodeName)
				results[i] = NodeResult{Node: nodeName, State: FailedToCordon, CordonErr: err}
				if cordon.IsForbidden(err) {
					forbidden.Store(true)
				}
				// A vanished node is a skip, not a batch failure.
				if !opts.IgnoreErrors && !cordon.IsNotFound(err) {
					halt.Store(true)
				}
				opts.notify(results[i])
				return
			}
			logger.V(1).Info("Node cordoned", "node", nodeName)

			results[i] = o.drainer.Drain(ctx, nodeName, opts.Sink)
			if !opts.IgnoreErrors && results[i].State != FullyDrained {
				halt.Store(true)
			}
			opts.notify(results[i])
		}(i, target.Name)
	}
	wg.Wait()

	return results, o.batchError(results, opts, forbidden.Load())
}

func (o *Orchestrator) batchError(results []NodeResult, opts Options, forbidden bool) error {
	failed := 0
	for _, r := range results {
		if r.State == FullyDrained {
			continue
		}
		// A node that vanished before cordon was skipped, not failed.
		if r.State == FailedToCordon && cordon.IsNotFound(r.CordonErr) {
			continue
		}
		failed++
	}
	if failed == 0 {
		return nil
	}
	if !opts.IgnoreErrors || forbidden {
		return fmt.Errorf("%w: %d of %d node(s) not fully drained", ErrBatchFailed, failed, len(results))
	}
	return nil
}
