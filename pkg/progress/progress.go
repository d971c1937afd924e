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

// Package progress renders drain activity for a terminal. Two renderers
// implement the drain event sink: a structured-log sink for plain output and
// an inline progress bar for interactive sessions.
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/knode-cli/knode/pkg/drain"
)

// LogSink returns a sink that writes each drain event as a structured log
// line. Used when the progress bar is disabled or stdout is not a terminal.
func LogSink(logger klog.Logger) drain.Sink {
	return drain.SinkFunc(func(ev drain.Event) {
		switch ev.Phase {
		case drain.PhaseRetrying:
			logger.V(2).Info("eviction retry", "node", ev.Node, "pod", klog.KRef(ev.Namespace, ev.Pod), "attempt", ev.Attempt)
		case drain.PhaseStarted:
			logger.V(2).Info("evicting pod", "node", ev.Node, "pod", klog.KRef(ev.Namespace, ev.Pod))
		default:
			logger.Info(string(ev.Phase), "node", ev.Node, "pod", klog.KRef(ev.Namespace, ev.Pod))
		}
	})
}

type eventMsg drain.Event

type nodeDoneMsg struct {
	node  string
	state drain.NodeState
}

type quitMsg struct{}

var (
	statusStyle = lipgloss.NewStyle().Faint(true)
	nodeStyle   = lipgloss.NewStyle().Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type model struct {
	bar        progress.Model
	totalNodes int
	doneNodes  int
	counts     map[drain.Phase]int
	current    string
	width      int
	lines      []string
}

func newModel(totalNodes int) model {
	return model{
		bar:        progress.New(progress.WithDefaultGradient()),
		totalNodes: totalNodes,
		counts:     map[drain.Phase]int{},
		width:      80,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 10
		return m, nil

	case eventMsg:
		ev := drain.Event(msg)
		m.counts[ev.Phase]++
		if ev.Phase == drain.PhaseStarted || ev.Phase == drain.PhaseRetrying {
			m.current = fmt.Sprintf("%s/%s on %s", ev.Namespace, ev.Pod, ev.Node)
		}
		return m, nil

	case nodeDoneMsg:
		m.doneNodes++
		line := fmt.Sprintf("%s %s", nodeStyle.Render(msg.node), msg.state)
		if msg.state != drain.FullyDrained {
			line = fmt.Sprintf("%s %s", nodeStyle.Render(msg.node), failStyle.Render(string(msg.state)))
		}
		m.lines = append(m.lines, line)
		return m, nil

	case quitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	pct := 1.0
	if m.totalNodes > 0 {
		pct = float64(m.doneNodes) / float64(m.totalNodes)
	}
	b.WriteString(m.bar.ViewAs(pct))
	b.WriteString(fmt.Sprintf(" %d/%d nodes\n", m.doneNodes, m.totalNodes))

	status := fmt.Sprintf("evicted %d  skipped %d  failed %d",
		m.counts[drain.PhaseEvicted], m.counts[drain.PhaseSkipped], m.counts[drain.PhaseFailed])
	if m.current != "" && m.doneNodes < m.totalNodes {
		status += "  evicting " + m.current
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteByte('\n')
	return b.String()
}

// Bar is an inline terminal progress bar fed by drain events. It implements
// the drain event sink; Publish is safe to call from any goroutine.
type Bar struct {
	prog *tea.Program
	done chan struct{}
	err  error
}

// NewBar creates a bar for a batch of totalNodes nodes.
func NewBar(totalNodes int) *Bar {
	return &Bar{
		prog: tea.NewProgram(newModel(totalNodes)),
		done: make(chan struct{}),
	}
}

// Start launches the render loop.
func (b *Bar) Start() {
	go func() {
		defer close(b.done)
		_, b.err = b.prog.Run()
	}()
}

// Publish forwards a drain event to the render loop.
func (b *Bar) Publish(ev drain.Event) {
	b.prog.Send(eventMsg(ev))
}

// NodeDone records a finished node.
func (b *Bar) NodeDone(res drain.NodeResult) {
	b.prog.Send(nodeDoneMsg{node: res.Node, state: res.State})
}

// Stop shuts the render loop down and waits for the final frame.
func (b *Bar) Stop() error {
	b.prog.Send(quitMsg{})
	<-b.done
	return b.err
}
