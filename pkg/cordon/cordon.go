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

// Package cordon toggles a node's schedulable flag. The operation is
// idempotent: marking an already-cordoned node unschedulable succeeds
// without touching the API object.
package cordon

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// Kind buckets cordon failures by how the caller must react.
type Kind int

const (
	// KindNotFound: the node vanished between listing and action. Callers
	// skip it; the rest of the batch proceeds.
	KindNotFound Kind = iota
	// KindForbidden: the caller lacks permission. Never retried; failing
	// fast beats a partial-permission failure midway through a batch.
	KindForbidden
	// KindTransient: conflicts, timeouts and other temporary API failures.
	// Retried with backoff before being surfaced.
	KindTransient
)

// Error is a classified cordon failure.
type Error struct {
	Node string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	var verb string
	switch e.Kind {
	case KindNotFound:
		verb = "not found"
	case KindForbidden:
		verb = "forbidden"
	default:
		verb = "failed"
	}
	return fmt.Sprintf("cordon node %s: %s: %v", e.Node, verb, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a cordon failure for a vanished node.
func IsNotFound(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindNotFound
}

// IsForbidden reports whether err is a permission failure.
func IsForbidden(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindForbidden
}

// defaultBackoff bounds transient retries: 4 attempts, 200ms doubling.
var defaultBackoff = wait.Backoff{
	Duration: 200 * time.Millisecond,
	Factor:   2,
	Steps:    4,
}

// Controller flips the schedulable flag on nodes.
type Controller struct {
	client  kubernetes.Interface
	backoff wait.Backoff
}

// NewController creates a Controller with the default retry policy.
func NewController(client kubernetes.Interface) *Controller {
	return &Controller{client: client, backoff: defaultBackoff}
}

// NewControllerWithBackoff allows tests to shrink the retry delays.
func NewControllerWithBackoff(client kubernetes.Interface, backoff wait.Backoff) *Controller {
	return &Controller{client: client, backoff: backoff}
}

// SetSchedulable sets the node's schedulable flag to the desired value.
// NotFound and Forbidden failures surface immediately as classified errors;
// anything else is retried with bounded exponential backoff.
func (c *Controller) SetSchedulable(ctx context.Context, nodeName string, schedulable bool) error {
	logger := klog.FromContext(ctx)

	backoff := c.backoff
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := c.setOnce(ctx, nodeName, schedulable)
		if err == nil {
			return nil
		}
		if apierrors.IsNotFound(err) {
			return &Error{Node: nodeName, Kind: KindNotFound, Err: err}
		}
		if apierrors.IsForbidden(err) {
			return &Error{Node: nodeName, Kind: KindForbidden, Err: err}
		}

		lastErr = err
		if attempt == backoff.Steps-1 {
			break
		}
		delay := backoff.Step()
		logger.V(2).Info("Retrying cordon after transient error",
			"node", nodeName, "attempt", attempt+1, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return &Error{Node: nodeName, Kind: KindTransient, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return &Error{Node: nodeName, Kind: KindTransient, Err: lastErr}
}

func (c *Controller) setOnce(ctx context.Context, nodeName string, schedulable bool) error {
	node, err := c.client.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		return err
	}
	if node.Spec.Unschedulable == !schedulable {
		return nil
	}
	node.Spec.Unschedulable = !schedulable
	_, err = c.client.CoreV1().Nodes().Update(ctx, node, metav1.UpdateOptions{})
	return err
}
