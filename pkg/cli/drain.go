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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/component-base/term"
	"k8s.io/klog/v2"

	"github.com/knode-cli/knode/pkg/cordon"
	"github.com/knode-cli/knode/pkg/drain"
	"github.com/knode-cli/knode/pkg/progress"
)

func newDrainCommand(r *root) *cobra.Command {
	var captypeFlag string
	var all bool
	var ignoreErrors bool
	var noProgress bool
	var force bool
	var concurrency int
	var podTimeout time.Duration
	var gracePeriod int64

	cmd := &cobra.Command{
		Use:     "drain [NODE...]",
		Aliases: []string{"cordon-drain"},
		Short:   "Cordon nodes and evict their workloads",
		Long: `Cordon the target nodes and evict their evictable pods, honoring pod
disruption budgets. Every node is cordoned immediately before its own drain
starts; an eviction is never issued for a node that was not cordoned first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			targets, err := r.resolveTargets(cmd, args, captypeFlag, all)
			if err != nil {
				return err
			}
			client, err := r.clientset()
			if err != nil {
				return err
			}

			engineCfg := drain.Config{
				PodWorkers: r.cfg.Drain.PodWorkers,
				PodTimeout: r.cfg.Drain.PodTimeout,
				Backoff: drain.Backoff{
					Base:        r.cfg.Drain.BackoffBase,
					Cap:         r.cfg.Drain.BackoffCap,
					MaxAttempts: r.cfg.Drain.MaxAttempts,
				},
				Force:              force,
				GracePeriodSeconds: gracePeriod,
			}
			if cmd.Flags().Changed("pod-timeout") {
				engineCfg.PodTimeout = podTimeout
			}

			opts := drain.Options{
				IgnoreErrors: ignoreErrors,
				Concurrency:  r.cfg.Drain.Concurrency,
			}
			if cmd.Flags().Changed("concurrency") {
				opts.Concurrency = concurrency
			}

			var bar *progress.Bar
			if noProgress || !isTerminal(cmd) {
				opts.Sink = progress.LogSink(klog.FromContext(ctx))
			} else {
				bar = progress.NewBar(len(targets))
				bar.Start()
				opts.Sink = bar
				opts.OnNodeDone = bar.NodeDone
			}

			orch := drain.NewOrchestrator(cordon.NewController(client), drain.NewEngine(client, engineCfg))
			results, runErr := orch.Run(ctx, targets, opts)

			if bar != nil {
				if err := bar.Stop(); err != nil {
					klog.FromContext(ctx).Error(err, "Progress rendering failed")
				}
			}

			printDrainSummary(cmd, results, ctx.Err() != nil)
			return runErr
		},
	}
	cmd.Flags().StringVarP(&captypeFlag, "captype", "c", "", "Target all nodes of this capacity type.")
	cmd.Flags().BoolVar(&all, "all", false, "Target every worker node.")
	cmd.Flags().BoolVar(&ignoreErrors, "ignore-errors", false, "Keep draining remaining nodes after a node fails.")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Log progress lines instead of the progress bar.")
	cmd.Flags().BoolVar(&force, "force", false, "Evict pods annotated safe-to-evict=false as well.")
	cmd.Flags().IntVar(&concurrency, "concurrency", drain.DefaultConcurrency, "How many nodes drain at once.")
	cmd.Flags().DurationVar(&podTimeout, "pod-timeout", 2*time.Minute, "How long to wait for each accepted eviction to complete.")
	cmd.Flags().Int64Var(&gracePeriod, "grace-period", -1, "Override for pod termination grace period (-1 = use pod's own).")
	return cmd
}

func isTerminal(cmd *cobra.Command) bool {
	_, _, err := term.TerminalSize(cmd.OutOrStdout())
	return err == nil
}

// printDrainSummary enumerates every node's terminal state and each pod
// failure's cause. Incomplete batches are labelled, not hidden.
func printDrainSummary(cmd *cobra.Command, results []drain.NodeResult, interrupted bool) {
	out := cmd.OutOrStdout()
	if interrupted {
		fmt.Fprintln(out, "drain interrupted, summary is incomplete:")
	}

	for _, res := range results {
		switch res.State {
		case drain.FailedToCordon:
			fmt.Fprintf(out, "%s: %s: %v\n", res.Node, res.State, res.CordonErr)
		case drain.Cancelled:
			fmt.Fprintf(out, "%s: %s\n", res.Node, res.State)
		default:
			fmt.Fprintln(out, res.Summary())
		}
		if res.Err != nil {
			fmt.Fprintf(out, "  error: %v\n", res.Err)
		}
		for _, f := range res.Failures() {
			cause := string(f.Reason)
			if cause == "" {
				cause = string(f.Status)
			}
			if f.Err != nil {
				cause = fmt.Sprintf("%s: %v", cause, f.Err)
			}
			fmt.Fprintf(out, "  %s: %s after %d attempt(s): %s\n", f.Pod, f.Status, f.Attempts, cause)
		}
	}
}
