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

// Package drain evicts workloads from nodes. The Engine drains a single
// node: it enumerates the node's evictable pods and drives each through the
// eviction protocol under retry/backoff, honouring disruption budgets. The
// Orchestrator fans Engines out across a node set with bounded concurrency.
package drain

import (
	"context"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

const (
	// mirrorPodAnnotation marks static pods managed by the kubelet; they
	// cannot be evicted through the API server.
	mirrorPodAnnotation = "kubernetes.io/config.mirror"

	// safeToEvictAnnotation, set to "false", opts a pod out of voluntary
	// eviction. Honoured as a hard skip unless the drain is forced.
	safeToEvictAnnotation = "cluster-autoscaler.kubernetes.io/safe-to-evict"
)

// Backoff bounds the retry loop for budget-blocked evictions.
type Backoff struct {
	// Base is the first delay; it doubles per attempt up to Cap.
	Base time.Duration
	Cap  time.Duration
	// MaxAttempts bounds total eviction submissions per pod so the engine
	// gives up on a budget that never frees instead of spinning forever.
	MaxAttempts int
}

// delay returns the backoff before the given retry (attempt starts at 1).
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base << (attempt - 1)
	if d > b.Cap || d <= 0 {
		d = b.Cap
	}
	return d
}

// Config tunes a single node's eviction pass.
type Config struct {
	// PodWorkers bounds concurrent evictions within one node.
	PodWorkers int
	// PodTimeout bounds waiting for an accepted eviction to complete.
	PodTimeout time.Duration
	// PollInterval is how often an evicted pod is checked for disappearance.
	PollInterval time.Duration
	Backoff      Backoff
	// Force evicts pods annotated safe-to-evict=false anyway.
	Force bool
	// GracePeriodSeconds overrides pod termination grace, -1 keeps the
	// pod's own.
	GracePeriodSeconds int64
	// SkipAnnotation names the opt-out annotation checked for the value
	// "false". Empty selects the cluster-autoscaler annotation.
	SkipAnnotation string
}

// DefaultConfig returns the stock eviction policy.
func DefaultConfig() Config {
	return Config{
		PodWorkers:   2,
		PodTimeout:   2 * time.Minute,
		PollInterval: time.Second,
		Backoff: Backoff{
			Base:        500 * time.Millisecond,
			Cap:         15 * time.Second,
			MaxAttempts: 5,
		},
		GracePeriodSeconds: -1,
	}
}

func (c *Config) withDefaults() {
	def := DefaultConfig()
	if c.PodWorkers <= 0 {
		c.PodWorkers = def.PodWorkers
	}
	if c.PodTimeout <= 0 {
		c.PodTimeout = def.PodTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = def.Backoff.Base
	}
	if c.Backoff.Cap <= 0 {
		c.Backoff.Cap = def.Backoff.Cap
	}
	if c.Backoff.MaxAttempts <= 0 {
		c.Backoff.MaxAttempts = def.Backoff.MaxAttempts
	}
	if c.SkipAnnotation == "" {
		c.SkipAnnotation = safeToEvictAnnotation
	}
}

// Engine drains one node at a time.
type Engine struct {
	client kubernetes.Interface
	cfg    Config
}

// NewEngine creates an Engine; zero Config fields fall back to defaults.
func NewEngine(client kubernetes.Interface, cfg Config) *Engine {
	cfg.withDefaults()
	return &Engine{client: client, cfg: cfg}
}

// Drain evicts the node's evictable pods and reports per-pod outcomes.
// The node must already be cordoned by the caller; draining an
// uncordoned node just races the scheduler.
//
// Cancelling ctx lets in-flight attempts finish but starts no new retries
// or pods; the result is then marked cancelled.
func (e *Engine) Drain(ctx context.Context, nodeName string, sink Sink) NodeResult {
	logger := klog.FromContext(ctx)
	sink = orNoop(sink)

	result := NodeResult{Node: nodeName}

	candidates, skips, err := e.listPods(ctx, nodeName)
	if err != nil {
		logger.Error(err, "Failed to list pods for drain", "node", nodeName)
		result.State = PartiallyDrained
		result.Err = err
		return result
	}

	var mu sync.Mutex
	for _, s := range skips {
		sink.Publish(Event{Node: nodeName, Namespace: s.Pod.Namespace, Pod: s.Pod.Name, Phase: PhaseSkipped})
		result.Outcomes = append(result.Outcomes, s)
	}

	jobs := make(chan PodRef)
	var wg sync.WaitGroup
	workers := e.cfg.PodWorkers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pod := range jobs {
				// Queued pods are abandoned once the caller cancels.
				if ctx.Err() != nil {
					continue
				}
				outcome := e.evictOne(ctx, nodeName, pod, sink)
				mu.Lock()
				result.Outcomes = append(result.Outcomes, outcome)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, pod := range candidates {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- pod:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		result.Cancelled = true
		result.State = Cancelled
		return result
	}

	result.State = FullyDrained
	for _, o := range result.Outcomes {
		if o.Status == PodFailed || o.Status == PodTimedOut {
			result.State = PartiallyDrained
			break
		}
	}
	return result
}

// listPods partitions the node's pods into eviction candidates and
// recorded skips.
func (e *Engine) listPods(ctx context.Context, nodeName string) (candidates []PodRef, skips []PodOutcome, err error) {
	// Not every list backend honours field selectors, so the node-name
	// check is repeated client-side.
	list, err := e.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("spec.nodeName", nodeName).String(),
	})
	if err != nil {
		return nil, nil, err
	}

	for i := range list.Items {
		pod := &list.Items[i]
		if pod.Spec.NodeName != nodeName {
			continue
		}
		ref := PodRef{Namespace: pod.Namespace, Name: pod.Name}
		if cause := e.skipCause(pod); cause != "" {
			skips = append(skips, PodOutcome{Pod: ref, Status: PodSkipped, SkipCause: cause})
			continue
		}
		candidates = append(candidates, ref)
	}
	return candidates, skips, nil
}

// skipCause returns why the pod is not evicted, or "" for candidates.
func (e *Engine) skipCause(pod *corev1.Pod) string {
	if _, mirror := pod.Annotations[mirrorPodAnnotation]; mirror {
		return "mirror pod"
	}
	for _, ref := range pod.OwnerReferences {
		// DaemonSet pods run on every node and reschedule right back;
		// evicting them is counterproductive.
		if ref.Kind == "DaemonSet" {
			return "daemonset pod"
		}
	}
	if pod.DeletionTimestamp != nil {
		return "already terminating"
	}
	if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
		return "terminal phase " + string(pod.Status.Phase)
	}
	if !e.cfg.Force && pod.Annotations[e.cfg.SkipAnnotation] == "false" {
		return "annotated " + e.cfg.SkipAnnotation + "=false (use --force to override)"
	}
	return ""
}

// evictOne drives a single pod through the eviction state machine:
// submit, then either wait for the pod to go, retry a blocked eviction, or
// record the failure.
func (e *Engine) evictOne(ctx context.Context, nodeName string, pod PodRef, sink Sink) PodOutcome {
	logger := klog.FromContext(ctx)

	sink.Publish(Event{Node: nodeName, Namespace: pod.Namespace, Pod: pod.Name, Phase: PhaseStarted, Attempt: 1})

	for attempt := 1; ; attempt++ {
		err := e.submitEviction(ctx, pod)
		switch {
		case err == nil:
			return e.awaitGone(ctx, nodeName, pod, attempt, sink)

		case apierrors.IsNotFound(err):
			// Pod disappeared on its own; nothing left to move.
			sink.Publish(Event{Node: nodeName, Namespace: pod.Namespace, Pod: pod.Name, Phase: PhaseEvicted, Attempt: attempt})
			return PodOutcome{Pod: pod, Status: PodEvicted, Attempts: attempt}

		case apierrors.IsTooManyRequests(err):
			// A disruption budget currently forbids this eviction.
			if attempt >= e.cfg.Backoff.MaxAttempts {
				sink.Publish(Event{Node: nodeName, Namespace: pod.Namespace, Pod: pod.Name, Phase: PhaseFailed, Attempt: attempt})
				return PodOutcome{Pod: pod, Status: PodFailed, Reason: ReasonBudgetBlocked, Attempts: attempt, Err: err}
			}
			delay := e.cfg.Backoff.delay(attempt)
			logger.V(2).Info("Eviction blocked by disruption budget, backing off",
				"pod", pod, "attempt", attempt, "delay", delay)
			sink.Publish(Event{Node: nodeName, Namespace: pod.Namespace, Pod: pod.Name, Phase: PhaseRetrying, Attempt: attempt})
			select {
			case <-ctx.Done():
				return PodOutcome{Pod: pod, Status: PodFailed, Reason: ReasonError, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}

		default:
			sink.Publish(Event{Node: nodeName, Namespace: pod.Namespace, Pod: pod.Name, Phase: PhaseFailed, Attempt: attempt})
			return PodOutcome{Pod: pod, Status: PodFailed, Reason: ReasonError, Attempts: attempt, Err: err}
		}
	}
}

func (e *Engine) submitEviction(ctx context.Context, pod PodRef) error {
	eviction := &policyv1.Eviction{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
		},
	}
	if e.cfg.GracePeriodSeconds >= 0 {
		grace := e.cfg.GracePeriodSeconds
		eviction.DeleteOptions = &metav1.DeleteOptions{GracePeriodSeconds: &grace}
	}
	return e.client.CoreV1().Pods(pod.Namespace).EvictV1(ctx, eviction)
}

// awaitGone polls until the accepted eviction removes the pod, the per-pod
// timeout elapses, or the caller cancels.
func (e *Engine) awaitGone(ctx context.Context, nodeName string, pod PodRef, attempt int, sink Sink) PodOutcome {
	err := wait.PollUntilContextTimeout(ctx, e.cfg.PollInterval, e.cfg.PodTimeout, true,
		func(ctx context.Context) (bool, error) {
			_, getErr := e.client.CoreV1().Pods(pod.Namespace).Get(ctx, pod.Name, metav1.GetOptions{})
			if apierrors.IsNotFound(getErr) {
				return true, nil
			}
			// Transient get errors just mean we poll again.
			return false, nil
		})
	switch {
	case err == nil:
		sink.Publish(Event{Node: nodeName, Namespace: pod.Namespace, Pod: pod.Name, Phase: PhaseEvicted, Attempt: attempt})
		return PodOutcome{Pod: pod, Status: PodEvicted, Attempts: attempt}
	case ctx.Err() != nil:
		return PodOutcome{Pod: pod, Status: PodFailed, Reason: ReasonError, Attempts: attempt, Err: ctx.Err()}
	default:
		sink.Publish(Event{Node: nodeName, Namespace: pod.Namespace, Pod: pod.Name, Phase: PhaseFailed, Attempt: attempt})
		return PodOutcome{Pod: pod, Status: PodTimedOut, Attempts: attempt, Err: err}
	}
}
