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

package progress

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/knode-cli/knode/pkg/drain"
)

func testLogger() klog.Logger { return klog.Background() }

func step(t *testing.T, m tea.Model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	mm, ok := next.(model)
	require.True(t, ok)
	return mm
}

func TestModelCounts(t *testing.T) {
	m := newModel(2)

	m = step(t, m, eventMsg{Node: "node-a", Namespace: "default", Pod: "web", Phase: drain.PhaseStarted})
	m = step(t, m, eventMsg{Node: "node-a", Namespace: "default", Pod: "web", Phase: drain.PhaseEvicted})
	m = step(t, m, eventMsg{Node: "node-a", Namespace: "kube-system", Pod: "agent", Phase: drain.PhaseSkipped})
	m = step(t, m, nodeDoneMsg{node: "node-a", state: drain.FullyDrained})

	view := m.View()
	assert.Contains(t, view, "1/2 nodes")
	assert.Contains(t, view, "evicted 1")
	assert.Contains(t, view, "skipped 1")
	assert.Contains(t, view, "node-a")
}

func TestModelFailedNodeShown(t *testing.T) {
	m := newModel(1)
	m = step(t, m, nodeDoneMsg{node: "node-b", state: drain.PartiallyDrained})

	assert.Contains(t, m.View(), "partially-drained")
	assert.Contains(t, m.View(), "1/1 nodes")
}

func TestModelQuit(t *testing.T) {
	m := newModel(1)
	_, cmd := m.Update(quitMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestLogSinkCoversAllPhases(t *testing.T) {
	sink := LogSink(testLogger())
	for _, phase := range []drain.Phase{drain.PhaseStarted, drain.PhaseRetrying, drain.PhaseEvicted, drain.PhaseFailed, drain.PhaseSkipped} {
		sink.Publish(drain.Event{Node: "node-a", Namespace: "default", Pod: "web", Phase: phase, Attempt: 1})
	}
}
