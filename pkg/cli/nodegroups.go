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

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/knode-cli/knode/pkg/capacity"
	"github.com/knode-cli/knode/pkg/nodegroup"
)

// scaler resolves the EKS cluster behind the kubeconfig context and builds a
// scaler for it. The config file's region and profile win over the ARN.
func (r *root) scaler(cmd *cobra.Command) (*nodegroup.Scaler, error) {
	info, err := nodegroup.CurrentCluster(r.kubeconfig, r.kubeContext)
	if err != nil {
		return nil, err
	}
	region := r.cfg.AWS.Region
	if region == "" {
		region = info.Region
	}
	api, err := nodegroup.NewEKSClient(cmd.Context(), region, r.cfg.AWS.Profile)
	if err != nil {
		return nil, err
	}
	return nodegroup.NewScaler(api, info.Name), nil
}

func newNodegroupsCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "nodegroups",
		Short: "List the cluster's node groups with their scaling configuration",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := r.scaler(cmd)
			if err != nil {
				return err
			}
			names, err := s.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "NAME\tCAPACITY\tMIN\tMAX\tDESIRED\tSTATUS")
			for _, name := range names {
				g, err := s.Describe(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
					g.Name, g.Capacity, g.Scaling.Min, g.Scaling.Max, g.Scaling.Desired, g.Status)
			}
			return tw.Flush()
		},
	}
}

func newScaleCommand(r *root) *cobra.Command {
	var captypeFlag string
	var all bool
	var minSize, maxSize, desired int32

	cmd := &cobra.Command{
		Use:   "scale [GROUP]",
		Short: "Change a node group's scaling configuration",
		Long: `Change the min, max, or desired size of one node group, or of every
(optionally capacity-filtered) node group with --all. Unset sizes keep their
current values. Sizes must satisfy 0 <= min <= desired <= max.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (all || captypeFlag != "") {
				return errors.New("give exactly one of: a group name, or --all / --captype")
			}

			var update nodegroup.Update
			if cmd.Flags().Changed("min") {
				update.Min = &minSize
			}
			if cmd.Flags().Changed("max") {
				update.Max = &maxSize
			}
			if cmd.Flags().Changed("desired") {
				update.Desired = &desired
			}

			s, err := r.scaler(cmd)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				g, err := s.SetScaling(cmd.Context(), args[0], update)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s scaled to min=%d max=%d desired=%d\n",
					g.Name, g.Scaling.Min, g.Scaling.Max, g.Scaling.Desired)
				return nil
			}

			var captype capacity.Type
			if captypeFlag != "" {
				captype, err = capacity.Parse(captypeFlag)
				if err != nil {
					return err
				}
			}

			results, err := s.SetAll(cmd.Context(), update, captype)
			if err != nil {
				return err
			}
			logger := klog.FromContext(cmd.Context())
			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					logger.Error(res.Err, "Failed to scale node group", "group", res.Group)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s scaled to min=%d max=%d desired=%d\n",
					res.Group, res.Scaling.Min, res.Scaling.Max, res.Scaling.Desired)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d node group(s) failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&captypeFlag, "captype", "c", "", "With --all semantics: every group of this capacity type.")
	cmd.Flags().BoolVar(&all, "all", false, "Apply to every node group.")
	cmd.Flags().Int32Var(&minSize, "min", 0, "New minimum size.")
	cmd.Flags().Int32Var(&maxSize, "max", 0, "New maximum size.")
	cmd.Flags().Int32Var(&desired, "desired", 0, "New desired size.")
	return cmd
}
