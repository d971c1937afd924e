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

package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/knode-cli/knode/pkg/capacity"
)

func newNode(name string, labels map[string]string, unschedulable bool) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Spec:       corev1.NodeSpec{Unschedulable: unschedulable},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func spotLabels() map[string]string {
	return map[string]string{"karpenter.sh/capacity-type": "spot"}
}

func onDemandLabels() map[string]string {
	return map[string]string{"karpenter.sh/capacity-type": "on-demand"}
}

func TestListSortedByName(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNode("node-c", spotLabels(), false),
		newNode("node-a", spotLabels(), false),
		newNode("node-b", onDemandLabels(), true),
	)
	r := NewResolver(client)

	nodes, err := r.List(context.Background(), All())
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "node-a", nodes[0].Name)
	assert.Equal(t, "node-b", nodes[1].Name)
	assert.Equal(t, "node-c", nodes[2].Name)

	assert.True(t, nodes[1].Unschedulable)
	assert.Equal(t, "Ready,NoSchedule", nodes[1].Status)
}

func TestListCapacityFilter(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNode("spot-1", spotLabels(), false),
		newNode("spot-2", spotLabels(), false),
		newNode("od-1", onDemandLabels(), false),
	)
	r := NewResolver(client)

	nodes, err := r.List(context.Background(), ByCapacity(capacity.Spot))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "spot-1", nodes[0].Name)
	assert.Equal(t, "spot-2", nodes[1].Name)
}

func TestListUnavailable(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})
	r := NewResolver(client)

	_, err := r.List(context.Background(), All())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestResolveUnion(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNode("spot-1", spotLabels(), false),
		newNode("od-1", onDemandLabels(), false),
		newNode("od-2", onDemandLabels(), false),
	)
	r := NewResolver(client)

	nodes, err := r.Resolve(context.Background(), []string{"od-1"}, capacity.Spot)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "od-1", nodes[0].Name)
	assert.Equal(t, "spot-1", nodes[1].Name)
}

func TestResolveUnknownName(t *testing.T) {
	client := fake.NewSimpleClientset(newNode("node-a", spotLabels(), false))
	r := NewResolver(client)

	_, err := r.Resolve(context.Background(), []string{"node-a", "missing"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestPodsExcludesDaemonSets(t *testing.T) {
	ds := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: "agent", Namespace: "kube-system",
			OwnerReferences: []metav1.OwnerReference{{Kind: "DaemonSet", Name: "agent"}},
		},
		Spec: corev1.PodSpec{NodeName: "node-a"},
	}
	app := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec:       corev1.PodSpec{NodeName: "node-a"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
	other := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-b", Namespace: "default"},
		Spec:       corev1.PodSpec{NodeName: "node-b"},
	}
	client := fake.NewSimpleClientset(ds, app, other)
	r := NewResolver(client)

	pods, err := r.Pods(context.Background(), []string{"node-a"}, false)
	require.NoError(t, err)
	require.Len(t, pods, 1)
	assert.Equal(t, "web", pods[0].Name)
	assert.Equal(t, "Running", pods[0].Phase)

	pods, err = r.Pods(context.Background(), []string{"node-a"}, true)
	require.NoError(t, err)
	assert.Len(t, pods, 2)

	pods, err = r.Pods(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Empty(t, pods)
}
