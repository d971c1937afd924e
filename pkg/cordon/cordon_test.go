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

package cordon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

var testBackoff = wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 4}

var nodesResource = schema.GroupResource{Resource: "nodes"}

func node(name string, unschedulable bool) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       corev1.NodeSpec{Unschedulable: unschedulable},
	}
}

func TestCordon(t *testing.T) {
	client := fake.NewSimpleClientset(node("node-a", false))
	c := NewControllerWithBackoff(client, testBackoff)

	require.NoError(t, c.SetSchedulable(context.Background(), "node-a", false))

	got, err := client.CoreV1().Nodes().Get(context.Background(), "node-a", metav1.GetOptions{})
	require.NoError(t, err)
	assert.True(t, got.Spec.Unschedulable)
}

func TestCordonIdempotent(t *testing.T) {
	client := fake.NewSimpleClientset(node("node-a", true))
	updates := 0
	client.PrependReactor("update", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
		updates++
		return false, nil, nil
	})
	c := NewControllerWithBackoff(client, testBackoff)

	require.NoError(t, c.SetSchedulable(context.Background(), "node-a", false))
	assert.Zero(t, updates, "already-cordoned node must not be written")
}

func TestUncordon(t *testing.T) {
	client := fake.NewSimpleClientset(node("node-a", true))
	c := NewControllerWithBackoff(client, testBackoff)

	require.NoError(t, c.SetSchedulable(context.Background(), "node-a", true))

	got, err := client.CoreV1().Nodes().Get(context.Background(), "node-a", metav1.GetOptions{})
	require.NoError(t, err)
	assert.False(t, got.Spec.Unschedulable)
}

func TestCordonNotFound(t *testing.T) {
	client := fake.NewSimpleClientset()
	c := NewControllerWithBackoff(client, testBackoff)

	err := c.SetSchedulable(context.Background(), "gone", false)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
}

func TestCordonForbiddenNotRetried(t *testing.T) {
	client := fake.NewSimpleClientset(node("node-a", false))
	calls := 0
	client.PrependReactor("update", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		return true, nil, apierrors.NewForbidden(nodesResource, "node-a", nil)
	})
	c := NewControllerWithBackoff(client, testBackoff)

	err := c.SetSchedulable(context.Background(), "node-a", false)
	require.Error(t, err)
	assert.True(t, IsForbidden(err))
	assert.Equal(t, 1, calls)
}

func TestCordonTransientRetried(t *testing.T) {
	client := fake.NewSimpleClientset(node("node-a", false))
	failures := 2
	client.PrependReactor("update", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
		if failures > 0 {
			failures--
			return true, nil, apierrors.NewServerTimeout(nodesResource, "update", 1)
		}
		return false, nil, nil
	})
	c := NewControllerWithBackoff(client, testBackoff)

	require.NoError(t, c.SetSchedulable(context.Background(), "node-a", false))

	got, err := client.CoreV1().Nodes().Get(context.Background(), "node-a", metav1.GetOptions{})
	require.NoError(t, err)
	assert.True(t, got.Spec.Unschedulable)
}

func TestCordonTransientExhausted(t *testing.T) {
	client := fake.NewSimpleClientset(node("node-a", false))
	calls := 0
	client.PrependReactor("update", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		return true, nil, apierrors.NewServerTimeout(nodesResource, "update", 1)
	})
	c := NewControllerWithBackoff(client, testBackoff)

	err := c.SetSchedulable(context.Background(), "node-a", false)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
	assert.Equal(t, testBackoff.Steps, calls)
}
