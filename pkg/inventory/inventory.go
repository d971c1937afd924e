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

// Package inventory resolves the cluster's current node and pod population
// into plain snapshot values. Every call builds the snapshot fresh from the
// API server; nothing is cached between invocations, so a stale view can
// never select the wrong nodes.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/knode-cli/knode/pkg/capacity"
)

// ErrUnavailable marks failures to obtain a trustworthy inventory from the
// API server. It is never retried: operating on a partial node list is worse
// than failing outright.
var ErrUnavailable = errors.New("node inventory unavailable")

// Node is a point-in-time view of a cluster node.
type Node struct {
	Name          string
	Unschedulable bool
	Capacity      capacity.Type
	// Nodegroup is the owning managed node group, "" outside one.
	Nodegroup    string
	InstanceType string
	Zone         string
	// Status joins the node conditions currently True, plus NoSchedule
	// when the node is cordoned.
	Status string
}

// Pod is a point-in-time view of a pod, scoped to what node operations need.
type Pod struct {
	Namespace string
	Name      string
	Node      string
	Phase     string
	Restarts  int
	DaemonSet bool
}

// Filter selects a subset of nodes.
type Filter func(Node) bool

// All matches every node.
func All() Filter { return func(Node) bool { return true } }

// ByCapacity matches nodes carrying the given capacity tag.
func ByCapacity(t capacity.Type) Filter {
	return func(n Node) bool { return n.Capacity == t }
}

// ByName matches nodes whose name is in the given set.
func ByName(names ...string) Filter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(n Node) bool {
		_, ok := set[n.Name]
		return ok
	}
}

// Resolver fetches node and pod snapshots from the API server.
type Resolver struct {
	client kubernetes.Interface
}

// NewResolver creates a Resolver over the given clientset.
func NewResolver(client kubernetes.Interface) *Resolver {
	return &Resolver{client: client}
}

// List returns the nodes matching the filter, sorted by name so repeated
// invocations print in a stable order.
func (r *Resolver) List(ctx context.Context, filter Filter) ([]Node, error) {
	list, err := r.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: list nodes: %v", ErrUnavailable, err)
	}

	nodes := make([]Node, 0, len(list.Items))
	for i := range list.Items {
		n := fromNodeObject(&list.Items[i])
		if filter(n) {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes, nil
}

// Resolve returns the union of explicitly named nodes and nodes matching the
// capacity tag. Explicit names that do not exist in the cluster are an error
// rather than a silent no-op. Passing captype == "" skips the tag filter.
func (r *Resolver) Resolve(ctx context.Context, names []string, captype capacity.Type) ([]Node, error) {
	all, err := r.List(ctx, All())
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Node, len(all))
	for _, n := range all {
		byName[n.Name] = n
	}

	selected := make(map[string]Node)
	var unknown []string
	for _, name := range names {
		n, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		selected[name] = n
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown node(s): %s", strings.Join(unknown, ", "))
	}

	if captype != "" {
		for _, n := range all {
			if n.Capacity == captype {
				selected[n.Name] = n
			}
		}
	}

	nodes := make([]Node, 0, len(selected))
	for _, n := range selected {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes, nil
}

// Pods returns the pods running on the named nodes, sorted by
// (node, namespace, name). DaemonSet-managed pods are excluded unless
// includeDaemonSets is set; they run on every node and are unaffected by
// node operations.
func (r *Resolver) Pods(ctx context.Context, nodeNames []string, includeDaemonSets bool) ([]Pod, error) {
	if len(nodeNames) == 0 {
		return nil, nil
	}
	list, err := r.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: list pods: %v", ErrUnavailable, err)
	}

	wanted := make(map[string]struct{}, len(nodeNames))
	for _, n := range nodeNames {
		wanted[n] = struct{}{}
	}

	var pods []Pod
	for i := range list.Items {
		p := fromPodObject(&list.Items[i])
		if _, ok := wanted[p.Node]; !ok {
			continue
		}
		if p.DaemonSet && !includeDaemonSets {
			continue
		}
		pods = append(pods, p)
	}
	sort.Slice(pods, func(i, j int) bool {
		a, b := pods[i], pods[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})
	return pods, nil
}

func fromNodeObject(obj *corev1.Node) Node {
	var parts []string
	for _, cond := range obj.Status.Conditions {
		if cond.Status == corev1.ConditionTrue {
			parts = append(parts, string(cond.Type))
		}
	}
	if obj.Spec.Unschedulable {
		parts = append(parts, "NoSchedule")
	}

	labels := obj.Labels
	instanceType := labels["node.kubernetes.io/instance-type"]
	if instanceType == "" {
		instanceType = labels["beta.kubernetes.io/instance-type"]
	}

	return Node{
		Name:          obj.Name,
		Unschedulable: obj.Spec.Unschedulable,
		Capacity:      capacity.Classify(labels),
		Nodegroup:     capacity.Nodegroup(labels),
		InstanceType:  instanceType,
		Zone:          labels["topology.kubernetes.io/zone"],
		Status:        strings.Join(parts, ","),
	}
}

func fromPodObject(obj *corev1.Pod) Pod {
	phase := string(obj.Status.Phase)
	restarts := 0
	for _, cs := range obj.Status.ContainerStatuses {
		restarts += int(cs.RestartCount)
		// Surface a waiting reason (CrashLoopBackOff etc.) over the bare phase.
		if phase == string(obj.Status.Phase) && cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			phase = cs.State.Waiting.Reason
		}
	}

	isDS := false
	for _, ref := range obj.OwnerReferences {
		if ref.Kind == "DaemonSet" {
			isDS = true
			break
		}
	}

	return Pod{
		Namespace: obj.Namespace,
		Name:      obj.Name,
		Node:      obj.Spec.NodeName,
		Phase:     phase,
		Restarts:  restarts,
		DaemonSet: isDS,
	}
}
