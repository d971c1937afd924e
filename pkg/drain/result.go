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

import "fmt"

// PodRef identifies a pod.
type PodRef struct {
	Namespace string
	Name      string
}

func (p PodRef) String() string { return p.Namespace + "/" + p.Name }

// OutcomeStatus is the terminal state of a single pod eviction.
type OutcomeStatus string

const (
	// PodEvicted: the eviction was accepted and the pod is gone.
	PodEvicted OutcomeStatus = "evicted"
	// PodSkipped: the pod was never a candidate (daemonset, mirror,
	// terminal phase, or opted out via annotation).
	PodSkipped OutcomeStatus = "skipped"
	// PodFailed: eviction gave up, see Reason.
	PodFailed OutcomeStatus = "failed"
	// PodTimedOut: eviction was accepted but the pod never disappeared
	// within the per-pod timeout.
	PodTimedOut OutcomeStatus = "timed-out"
)

// FailureReason qualifies a PodFailed outcome.
type FailureReason string

const (
	// ReasonBudgetBlocked: a disruption budget refused the eviction for
	// every bounded retry attempt.
	ReasonBudgetBlocked FailureReason = "budget-blocked"
	// ReasonError: a non-retryable eviction error.
	ReasonError FailureReason = "error"
)

// PodOutcome is the immutable record of one pod's eviction.
type PodOutcome struct {
	Pod      PodRef
	Status   OutcomeStatus
	Reason   FailureReason
	Attempts int
	// SkipCause explains a PodSkipped outcome.
	SkipCause string
	Err       error
}

// NodeState is a node's terminal drain state.
type NodeState string

const (
	FullyDrained     NodeState = "fully-drained"
	PartiallyDrained NodeState = "partially-drained"
	FailedToCordon   NodeState = "failed-to-cordon"
	Cancelled        NodeState = "cancelled"
)

// NodeResult aggregates one node's cordon outcome and the outcomes of its
// pods, recorded in completion order.
type NodeResult struct {
	Node      string
	State     NodeState
	CordonErr error
	// Err records a node-level failure outside any single pod, such as
	// failing to enumerate the node's pods.
	Err      error
	Outcomes []PodOutcome
	// Cancelled marks a result cut short by caller cancellation; the
	// recorded outcomes are whatever completed before the cut.
	Cancelled bool
}

// Failures returns the outcomes that kept the node from draining fully.
func (r NodeResult) Failures() []PodOutcome {
	var out []PodOutcome
	for _, o := range r.Outcomes {
		if o.Status == PodFailed || o.Status == PodTimedOut {
			out = append(out, o)
		}
	}
	return out
}

// Summary renders a one-line account of the result.
func (r NodeResult) Summary() string {
	evicted, skipped := 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case PodEvicted:
			evicted++
		case PodSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("%s: %s (%d evicted, %d skipped, %d failed)",
		r.Node, r.State, evicted, skipped, len(r.Failures()))
}
