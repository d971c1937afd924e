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
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/knode-cli/knode/pkg/capacity"
	"github.com/knode-cli/knode/pkg/cordon"
	"github.com/knode-cli/knode/pkg/inventory"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func captypeValues() string {
	var names []string
	for _, t := range capacity.All() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func newListCommand(r *root) *cobra.Command {
	var output string
	var captypeFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List worker nodes with their capacity classification",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := r.clientset()
			if err != nil {
				return err
			}

			filter := inventory.All()
			if captypeFlag != "" {
				captype, err := capacity.Parse(captypeFlag)
				if err != nil {
					return err
				}
				filter = inventory.ByCapacity(captype)
			}

			nodes, err := inventory.NewResolver(client).List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			switch output {
			case "name":
				for _, n := range nodes {
					fmt.Fprintln(cmd.OutOrStdout(), n.Name)
				}
			case "table":
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "NAME\tCAPACITY\tNODEGROUP\tINSTANCE-TYPE\tZONE\tSTATUS")
				for _, n := range nodes {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						n.Name, n.Capacity, orDash(n.Nodegroup), orDash(n.InstanceType), orDash(n.Zone), n.Status)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format %q (want table or name)", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or name.")
	cmd.Flags().StringVarP(&captypeFlag, "captype", "c", "", "Only nodes of this capacity type ("+captypeValues()+").")
	return cmd
}

func newPodsCommand(r *root) *cobra.Command {
	var captypeFlag string
	var includeDaemonSets bool

	cmd := &cobra.Command{
		Use:   "pods [NODE...]",
		Short: "List pods on worker nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := r.clientset()
			if err != nil {
				return err
			}
			resolver := inventory.NewResolver(client)

			var nodes []inventory.Node
			if len(args) == 0 && captypeFlag == "" {
				nodes, err = resolver.List(cmd.Context(), inventory.All())
			} else {
				nodes, err = r.resolveTargets(cmd, args, captypeFlag, false)
			}
			if err != nil {
				return err
			}

			names := make([]string, len(nodes))
			for i, n := range nodes {
				names[i] = n.Name
			}
			pods, err := resolver.Pods(cmd.Context(), names, includeDaemonSets)
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "NODE\tNAMESPACE\tPOD\tSTATUS\tRESTARTS")
			for _, p := range pods {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.Node, p.Namespace, p.Name, p.Phase, p.Restarts)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&captypeFlag, "captype", "c", "", "Only pods on nodes of this capacity type.")
	cmd.Flags().BoolVar(&includeDaemonSets, "include-daemonsets", false, "Include DaemonSet-owned pods.")
	return cmd
}

// newCordonCommand builds cordon or, with uncordon set, its inverse.
func newCordonCommand(r *root, uncordon bool) *cobra.Command {
	use, short := "cordon", "Mark nodes unschedulable"
	if uncordon {
		use, short = "uncordon", "Mark nodes schedulable again"
	}

	var captypeFlag string
	var all bool

	cmd := &cobra.Command{
		Use:   use + " [NODE...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := r.resolveTargets(cmd, args, captypeFlag, all)
			if err != nil {
				return err
			}
			client, err := r.clientset()
			if err != nil {
				return err
			}
			logger := klog.FromContext(cmd.Context())
			ctrl := cordon.NewController(client)

			failed := 0
			for _, node := range targets {
				err := ctrl.SetSchedulable(cmd.Context(), node.Name, uncordon)
				switch {
				case err == nil:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %sed\n", node.Name, use)
				case cordon.IsNotFound(err):
					logger.Info("Node vanished, skipping", "node", node.Name)
				default:
					failed++
					logger.Error(err, "Failed to update node", "node", node.Name)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d node(s) failed", failed, len(targets))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&captypeFlag, "captype", "c", "", "Target all nodes of this capacity type.")
	cmd.Flags().BoolVar(&all, "all", false, "Target every worker node.")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
