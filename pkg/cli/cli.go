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

// Package cli builds the knode command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/featuregate"
	"k8s.io/component-base/logs"
	logsapi "k8s.io/component-base/logs/api/v1"
	"k8s.io/component-base/term"

	"github.com/knode-cli/knode/pkg/capacity"
	"github.com/knode-cli/knode/pkg/config"
	"github.com/knode-cli/knode/pkg/inventory"
)

// root carries state shared by every subcommand. Flags are bound to it at
// construction; the Kubernetes client and defaults file are resolved once in
// the persistent pre-run.
type root struct {
	kubeconfig   string
	kubeContext  string
	kubeAPIQPS   float32
	kubeAPIBurst int
	configPath   string

	cfg    *config.Config
	client kubernetes.Interface
}

// NewCommand creates the knode cobra command tree.
func NewCommand() *cobra.Command {
	o := logsapi.NewLoggingConfiguration()
	r := &root{}

	cmd := &cobra.Command{
		Use:           "knode",
		Long:          "knode manages the lifecycle of managed-Kubernetes worker nodes: listing and classifying them by capacity type, cordoning, draining workloads with eviction-based safety, and scaling the cloud node groups behind them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	sharedFlagSets := cliflag.NamedFlagSets{}
	fs := sharedFlagSets.FlagSet("logging")
	logsapi.AddFlags(o, fs)
	logs.AddFlags(fs, logs.SkipLoggingConfigurationFlags())

	fs = sharedFlagSets.FlagSet("Kubernetes client")
	fs.StringVar(&r.kubeconfig, "kubeconfig", "", "Path to kubeconfig. Uses in-cluster config if empty.")
	fs.StringVar(&r.kubeContext, "context", "", "Kubeconfig context to use instead of the current one.")
	fs.Float32Var(&r.kubeAPIQPS, "kube-api-qps", 50, "QPS for the Kubernetes API client.")
	fs.IntVar(&r.kubeAPIBurst, "kube-api-burst", 100, "Burst for the Kubernetes API client.")

	fs = sharedFlagSets.FlagSet("defaults")
	fs.StringVar(&r.configPath, "config", "", "Path to a knode config file (default ~/.config/knode/config.yaml).")

	fs = sharedFlagSets.FlagSet("other")
	featureGate := featuregate.NewFeatureGate()
	utilruntime.Must(logsapi.AddFeatureGates(featureGate))
	featureGate.AddFlag(fs)

	fs = cmd.PersistentFlags()
	for _, f := range sharedFlagSets.FlagSets {
		fs.AddFlagSet(f)
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := logsapi.ValidateAndApply(o, featureGate); err != nil {
			return err
		}

		cfg, err := config.Load(r.configPath)
		if err != nil {
			return err
		}
		r.cfg = cfg

		if env := os.Getenv("KUBECONFIG"); env != "" && r.kubeconfig == "" {
			r.kubeconfig = env
		}
		return nil
	}

	cmd.AddCommand(
		newListCommand(r),
		newPodsCommand(r),
		newCordonCommand(r, false),
		newCordonCommand(r, true),
		newDrainCommand(r),
		newNodegroupsCommand(r),
		newScaleCommand(r),
	)

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, sharedFlagSets, cols)

	return cmd
}

// clientset builds the Kubernetes client lazily so commands that only talk
// to the cloud provider still work without API server access.
func (r *root) clientset() (kubernetes.Interface, error) {
	if r.client != nil {
		return r.client, nil
	}

	var restConfig *rest.Config
	var err error
	if r.kubeconfig == "" && r.kubeContext == "" {
		restConfig, err = rest.InClusterConfig()
		if err != nil && !errors.Is(err, rest.ErrNotInCluster) {
			return nil, fmt.Errorf("create in-cluster config: %w", err)
		}
	}
	if restConfig == nil {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		if r.kubeconfig != "" {
			rules.ExplicitPath = r.kubeconfig
		}
		overrides := &clientcmd.ConfigOverrides{CurrentContext: r.kubeContext}
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("create out-of-cluster config: %w", err)
		}
	}
	restConfig.QPS = r.kubeAPIQPS
	restConfig.Burst = r.kubeAPIBurst

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	r.client = client
	return client, nil
}

// resolveTargets turns positional node names, a capacity-type flag, or --all
// into a concrete target list.
func (r *root) resolveTargets(cmd *cobra.Command, args []string, captypeFlag string, all bool) ([]inventory.Node, error) {
	client, err := r.clientset()
	if err != nil {
		return nil, err
	}
	resolver := inventory.NewResolver(client)
	ctx := cmd.Context()

	if all {
		return resolver.List(ctx, inventory.All())
	}

	var captype capacity.Type
	if captypeFlag != "" {
		captype, err = capacity.Parse(captypeFlag)
		if err != nil {
			return nil, err
		}
	}
	if len(args) == 0 && captypeFlag == "" {
		return nil, errors.New("no targets: give node names, --captype, or --all")
	}

	nodes, err := resolver.Resolve(ctx, args, captype)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errors.New("no nodes matched the given targets")
	}
	return nodes, nil
}
