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

// Package nodegroup reads and rewrites the scaling configuration of EKS
// managed node groups. The provider is the source of truth: every operation
// describes the group fresh, and nothing is cached between calls.
package nodegroup

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/knode-cli/knode/pkg/capacity"
)

// EKSAPI is the slice of the EKS client the scaler needs.
type EKSAPI interface {
	ListNodegroups(ctx context.Context, params *eks.ListNodegroupsInput, optFns ...func(*eks.Options)) (*eks.ListNodegroupsOutput, error)
	DescribeNodegroup(ctx context.Context, params *eks.DescribeNodegroupInput, optFns ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error)
	UpdateNodegroupConfig(ctx context.Context, params *eks.UpdateNodegroupConfigInput, optFns ...func(*eks.Options)) (*eks.UpdateNodegroupConfigOutput, error)
}

// Scaling is a node group's size envelope. Invariant: 0 <= Min <= Desired <= Max.
type Scaling struct {
	Min     int32
	Max     int32
	Desired int32
}

func (s Scaling) validate() error {
	switch {
	case s.Min < 0 || s.Max < 0 || s.Desired < 0:
		return errors.New("sizes must be non-negative")
	case s.Min > s.Desired:
		return fmt.Errorf("min %d exceeds desired %d", s.Min, s.Desired)
	case s.Desired > s.Max:
		return fmt.Errorf("desired %d exceeds max %d", s.Desired, s.Max)
	}
	return nil
}

// Group is a described managed node group.
type Group struct {
	Name     string
	Status   string
	Capacity capacity.Type
	Scaling  Scaling
}

// Update carries the fields to change; nil fields keep the current value.
type Update struct {
	Min     *int32
	Max     *int32
	Desired *int32
}

func (u Update) empty() bool {
	return u.Min == nil && u.Max == nil && u.Desired == nil
}

// Kind buckets scaling failures.
type Kind int

const (
	// KindOutOfRange: the requested sizes violate 0 <= min <= desired <= max.
	// Caught locally; the provider is never called.
	KindOutOfRange Kind = iota
	// KindProviderRejected: the provider refused the update.
	KindProviderRejected
)

// ScalingError is a classified scaling failure for one group.
type ScalingError struct {
	Group string
	Kind  Kind
	Err   error
}

func (e *ScalingError) Error() string {
	kind := "rejected by provider"
	if e.Kind == KindOutOfRange {
		kind = "out of range"
	}
	return fmt.Sprintf("scale node group %s: %s: %v", e.Group, kind, e.Err)
}

func (e *ScalingError) Unwrap() error { return e.Err }

// IsOutOfRange reports whether err is a locally-caught size violation.
func IsOutOfRange(err error) bool {
	var se *ScalingError
	return errors.As(err, &se) && se.Kind == KindOutOfRange
}

// GroupResult is the per-group outcome of a bulk scaling pass.
type GroupResult struct {
	Group   string
	Scaling Scaling
	Err     error
}

// Scaler reads and rewrites managed node group scaling for one cluster.
type Scaler struct {
	api     EKSAPI
	cluster string
}

// NewScaler creates a Scaler for the named cluster.
func NewScaler(api EKSAPI, cluster string) *Scaler {
	return &Scaler{api: api, cluster: cluster}
}

// NewEKSClient builds the real EKS client from ambient AWS configuration.
// Region and profile may be empty to use the environment's defaults.
func NewEKSClient(ctx context.Context, region, profile string) (*eks.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return eks.NewFromConfig(cfg), nil
}

// List returns the cluster's node group names, sorted.
func (s *Scaler) List(ctx context.Context) ([]string, error) {
	var names []string
	var token *string
	for {
		out, err := s.api.ListNodegroups(ctx, &eks.ListNodegroupsInput{
			ClusterName: aws.String(s.cluster),
			NextToken:   token,
		})
		if err != nil {
			return nil, fmt.Errorf("list node groups for cluster %s: %w", s.cluster, err)
		}
		names = append(names, out.Nodegroups...)
		if out.NextToken == nil {
			break
		}
		token = out.NextToken
	}
	sort.Strings(names)
	return names, nil
}

// Describe fetches one group's current scaling configuration.
func (s *Scaler) Describe(ctx context.Context, name string) (Group, error) {
	out, err := s.api.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(s.cluster),
		NodegroupName: aws.String(name),
	})
	if err != nil {
		return Group{}, fmt.Errorf("describe node group %s: %w", name, err)
	}
	return fromNodegroup(out.Nodegroup, name), nil
}

// SetScaling merges the update with the group's current sizes, validates the
// result locally, and writes it. Size violations fail fast with OutOfRange
// before any provider write.
func (s *Scaler) SetScaling(ctx context.Context, name string, update Update) (Group, error) {
	if update.empty() {
		return Group{}, fmt.Errorf("scale node group %s: nothing to change", name)
	}

	group, err := s.Describe(ctx, name)
	if err != nil {
		return Group{}, err
	}

	next := group.Scaling
	if update.Min != nil {
		next.Min = *update.Min
	}
	if update.Max != nil {
		next.Max = *update.Max
	}
	if update.Desired != nil {
		next.Desired = *update.Desired
	}
	if err := next.validate(); err != nil {
		return Group{}, &ScalingError{Group: name, Kind: KindOutOfRange, Err: err}
	}

	_, err = s.api.UpdateNodegroupConfig(ctx, &eks.UpdateNodegroupConfigInput{
		ClusterName:   aws.String(s.cluster),
		NodegroupName: aws.String(name),
		ScalingConfig: &ekstypes.NodegroupScalingConfig{
			MinSize:     aws.Int32(next.Min),
			MaxSize:     aws.Int32(next.Max),
			DesiredSize: aws.Int32(next.Desired),
		},
	})
	if err != nil {
		return Group{}, &ScalingError{Group: name, Kind: KindProviderRejected, Err: err}
	}

	group.Scaling = next
	return group, nil
}

// SetAll applies the update to every node group (optionally filtered by
// capacity type) sequentially. One group's failure never aborts the others.
func (s *Scaler) SetAll(ctx context.Context, update Update, captype capacity.Type) ([]GroupResult, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var results []GroupResult
	for _, name := range names {
		if captype != "" {
			group, err := s.Describe(ctx, name)
			if err != nil {
				results = append(results, GroupResult{Group: name, Err: err})
				continue
			}
			if group.Capacity != captype {
				continue
			}
		}
		group, err := s.SetScaling(ctx, name, update)
		results = append(results, GroupResult{Group: name, Scaling: group.Scaling, Err: err})
	}
	return results, nil
}

func fromNodegroup(ng *ekstypes.Nodegroup, fallbackName string) Group {
	if ng == nil {
		return Group{Name: fallbackName, Status: "UNKNOWN", Capacity: capacity.Unknown}
	}
	g := Group{
		Name:     aws.ToString(ng.NodegroupName),
		Status:   string(ng.Status),
		Capacity: capacityOf(ng.CapacityType),
	}
	if g.Name == "" {
		g.Name = fallbackName
	}
	if sc := ng.ScalingConfig; sc != nil {
		g.Scaling = Scaling{
			Min:     aws.ToInt32(sc.MinSize),
			Max:     aws.ToInt32(sc.MaxSize),
			Desired: aws.ToInt32(sc.DesiredSize),
		}
	}
	return g
}

func capacityOf(t ekstypes.CapacityTypes) capacity.Type {
	switch t {
	case ekstypes.CapacityTypesSpot:
		return capacity.Spot
	case ekstypes.CapacityTypesOnDemand:
		return capacity.OnDemand
	default:
		return capacity.Unknown
	}
}
