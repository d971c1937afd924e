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

package drain

// Phase is the stage a pod eviction has reached.
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseRetrying Phase = "retrying"
	PhaseEvicted  Phase = "evicted"
	PhaseFailed   Phase = "failed"
	PhaseSkipped  Phase = "skipped"
)

// Event is one step of drain progress. Events carry no rendering
// assumptions; sinks decide whether they become a bar, log lines or JSON.
type Event struct {
	Node      string
	Namespace string
	Pod       string
	Phase     Phase
	// Attempt is the eviction attempt number the event belongs to,
	// starting at 1. Zero for skips.
	Attempt int
}

// Sink consumes progress events. Implementations must be safe for
// concurrent use; the engine publishes from multiple workers.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

type noopSink struct{}

func (noopSink) Publish(Event) {}

func orNoop(s Sink) Sink {
	if s == nil {
		return noopSink{}
	}
	return s
}
