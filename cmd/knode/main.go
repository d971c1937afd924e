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

// knode manages managed-Kubernetes worker nodes: it lists and classifies
// them by capacity type, cordons and drains them with eviction-based safety,
// and scales the cloud node groups behind them.
package main

import (
	"os"

	"k8s.io/component-base/cli"
	_ "k8s.io/component-base/logs/json/register"

	knodecli "github.com/knode-cli/knode/pkg/cli"
)

func main() {
	command := knodecli.NewCommand()
	code := cli.Run(command)
	os.Exit(code)
}
