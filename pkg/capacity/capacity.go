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

// Package capacity classifies nodes by how their compute is acquired:
// spot or on-demand (optionally through an EKS managed node group), or
// Fargate. Classification is a pure function over node labels so repeated
// calls on the same metadata always yield the same tag.
package capacity

import (
	"fmt"
	"strings"
)

// Type is the capacity acquisition tag of a node.
type Type string

const (
	Spot       Type = "spot"
	OnDemand   Type = "on-demand"
	NGSpot     Type = "ng-spot"
	NGOnDemand Type = "ng-on-demand"
	Fargate    Type = "fargate"
	Unknown    Type = "unknown"
)

// Node labels consulted during classification.
const (
	// karpenterCapacityLabel is set by Karpenter on nodes it provisions
	// ("spot" or "on-demand").
	karpenterCapacityLabel = "karpenter.sh/capacity-type"
	// eksCapacityLabel is set on managed node group nodes
	// ("SPOT" or "ON_DEMAND").
	eksCapacityLabel = "eks.amazonaws.com/capacityType"
	// eksComputeLabel marks Fargate-backed nodes ("fargate").
	eksComputeLabel = "eks.amazonaws.com/compute-type"
	// eksNodegroupLabel names the managed node group owning the node.
	eksNodegroupLabel = "eks.amazonaws.com/nodegroup"
)

// All lists every valid tag, for flag help and completion.
func All() []Type {
	return []Type{Spot, OnDemand, NGSpot, NGOnDemand, Fargate, Unknown}
}

// Classify derives the capacity tag from node labels. It is total: nodes
// carrying none of the recognized labels classify as Unknown.
func Classify(labels map[string]string) Type {
	if strings.EqualFold(labels[eksComputeLabel], string(Fargate)) {
		return Fargate
	}

	raw := labels[karpenterCapacityLabel]
	if raw == "" {
		raw = labels[eksCapacityLabel]
	}
	base := normalize(raw)
	if base != Spot && base != OnDemand {
		return Unknown
	}

	if _, managed := labels[eksNodegroupLabel]; managed {
		if base == Spot {
			return NGSpot
		}
		return NGOnDemand
	}
	return base
}

// Nodegroup returns the managed node group owning the node, or "" when the
// node is not part of one.
func Nodegroup(labels map[string]string) string {
	return labels[eksNodegroupLabel]
}

// normalize folds the EKS API spelling (ON_DEMAND) onto the tag spelling.
func normalize(raw string) Type {
	return Type(strings.ReplaceAll(strings.ToLower(raw), "_", "-"))
}

// Parse validates a user-supplied capacity tag, accepting the EKS API
// spelling as well as the canonical one.
func Parse(s string) (Type, error) {
	t := normalize(s)
	for _, known := range All() {
		if t == known {
			return known, nil
		}
	}
	return Unknown, fmt.Errorf("unknown capacity type %q (valid: %s)", s, joinAll())
}

func joinAll() string {
	parts := make([]string, 0, len(All()))
	for _, t := range All() {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}
