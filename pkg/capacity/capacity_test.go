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

package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]string
		want   Type
	}{
		{
			name:   "karpenter spot",
			labels: map[string]string{"karpenter.sh/capacity-type": "spot"},
			want:   Spot,
		},
		{
			name:   "karpenter on-demand",
			labels: map[string]string{"karpenter.sh/capacity-type": "on-demand"},
			want:   OnDemand,
		},
		{
			name:   "managed node group spot",
			labels: map[string]string{"eks.amazonaws.com/capacityType": "SPOT", "eks.amazonaws.com/nodegroup": "main-use1-az1"},
			want:   NGSpot,
		},
		{
			name:   "managed node group on-demand",
			labels: map[string]string{"eks.amazonaws.com/capacityType": "ON_DEMAND", "eks.amazonaws.com/nodegroup": "main-use1-az1"},
			want:   NGOnDemand,
		},
		{
			name:   "eks capacity label without nodegroup",
			labels: map[string]string{"eks.amazonaws.com/capacityType": "ON_DEMAND"},
			want:   OnDemand,
		},
		{
			name:   "fargate",
			labels: map[string]string{"eks.amazonaws.com/compute-type": "fargate"},
			want:   Fargate,
		},
		{
			// Fargate marker wins even if other labels are around.
			name: "fargate with stray capacity label",
			labels: map[string]string{
				"eks.amazonaws.com/compute-type": "fargate",
				"karpenter.sh/capacity-type":     "spot",
			},
			want: Fargate,
		},
		{
			name:   "no capacity labels",
			labels: map[string]string{"topology.kubernetes.io/zone": "us-east-1a"},
			want:   Unknown,
		},
		{
			name:   "nodegroup label with garbage capacity value",
			labels: map[string]string{"eks.amazonaws.com/capacityType": "RESERVED", "eks.amazonaws.com/nodegroup": "ng"},
			want:   Unknown,
		},
		{
			name:   "nil labels",
			labels: nil,
			want:   Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.labels))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	labels := map[string]string{
		"eks.amazonaws.com/capacityType": "SPOT",
		"eks.amazonaws.com/nodegroup":    "main-use1-az1",
	}
	first := Classify(labels)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(labels))
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("ng-spot")
	require.NoError(t, err)
	assert.Equal(t, NGSpot, got)

	// EKS API spelling is accepted.
	got, err = Parse("ON_DEMAND")
	require.NoError(t, err)
	assert.Equal(t, OnDemand, got)

	_, err = Parse("reserved")
	assert.Error(t, err)
}

func TestNodegroup(t *testing.T) {
	assert.Equal(t, "main-use1-az1", Nodegroup(map[string]string{"eks.amazonaws.com/nodegroup": "main-use1-az1"}))
	assert.Empty(t, Nodegroup(nil))
}
