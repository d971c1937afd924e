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

package nodegroup

import (
	"fmt"
	"strings"

	"k8s.io/client-go/tools/clientcmd"
)

// ClusterInfo identifies the EKS cluster behind a kubeconfig context.
type ClusterInfo struct {
	Name   string
	Region string
}

// CurrentCluster resolves the EKS cluster name and region from the kubeconfig
// context. EKS kubeconfig entries name the cluster by its ARN
// (arn:aws:eks:REGION:ACCOUNT:cluster/NAME); a non-ARN entry is taken as the
// cluster name with no region.
func CurrentCluster(kubeconfigPath, contextName string) (ClusterInfo, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}
	raw, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).RawConfig()
	if err != nil {
		return ClusterInfo{}, fmt.Errorf("load kubeconfig: %w", err)
	}

	if contextName == "" {
		contextName = raw.CurrentContext
	}
	kctx, ok := raw.Contexts[contextName]
	if !ok || contextName == "" {
		return ClusterInfo{}, fmt.Errorf("kubeconfig context %q not found", contextName)
	}
	return ParseClusterRef(kctx.Cluster)
}

// ParseClusterRef extracts the cluster name and region from a kubeconfig
// cluster entry name.
func ParseClusterRef(ref string) (ClusterInfo, error) {
	if ref == "" {
		return ClusterInfo{}, fmt.Errorf("kubeconfig context has no cluster entry")
	}
	if !strings.HasPrefix(ref, "arn:") {
		return ClusterInfo{Name: ref}, nil
	}
	// arn:aws:eks:REGION:ACCOUNT:cluster/NAME
	parts := strings.SplitN(ref, ":", 6)
	if len(parts) != 6 || parts[2] != "eks" {
		return ClusterInfo{}, fmt.Errorf("cluster entry %q is not an EKS ARN", ref)
	}
	name, ok := strings.CutPrefix(parts[5], "cluster/")
	if !ok || name == "" {
		return ClusterInfo{}, fmt.Errorf("cluster entry %q is not an EKS cluster ARN", ref)
	}
	return ClusterInfo{Name: name, Region: parts[3]}, nil
}
