// Copyright 2025 reclab Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package progress tracks the stages of an experiment through spans attached
// to the context. Nested stages become child spans of the span found in the
// context.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKeyType string

var spanKeyName = spanKeyType(uuid.New().String())

type Status string

const (
	StatusPending  Status = "Pending"
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

type Span struct {
	mu       sync.Mutex
	name     string
	status   Status
	total    int
	count    int
	err      error
	start    time.Time
	finish   time.Time
	children sync.Map
}

// Start creates a span for a stage with total steps. If the context already
// carries a span, the new span is registered as its child.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	childSpan := &Span{
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
	}
	if ctx == nil {
		return nil, childSpan
	}
	span, ok := ctx.Value(spanKeyName).(*Span)
	if !ok {
		return context.WithValue(ctx, spanKeyName, childSpan), childSpan
	}
	span.children.Store(name, childSpan)
	return context.WithValue(ctx, spanKeyName, childSpan), childSpan
}

// Add advances the span by n steps.
func (s *Span) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count += n
}

// End marks the span as complete.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = s.total
	s.status = StatusComplete
	s.finish = time.Now()
}

// Fail marks the span as failed.
func (s *Span) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.status = StatusFailed
	s.finish = time.Now()
}

// Count returns the number of finished steps.
func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Progress is a snapshot of a span used for reporting.
type Progress struct {
	Name       string
	Status     Status
	Error      string
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
}

// Snapshot returns the progress of the span and its children, depth first.
func (s *Span) Snapshot() []Progress {
	s.mu.Lock()
	progress := []Progress{{
		Name:       s.name,
		Status:     s.status,
		Count:      s.count,
		Total:      s.total,
		StartTime:  s.start,
		FinishTime: s.finish,
	}}
	if s.err != nil {
		progress[0].Error = s.err.Error()
	}
	s.mu.Unlock()
	s.children.Range(func(_, value interface{}) bool {
		child := value.(*Span)
		progress = append(progress, child.Snapshot()...)
		return true
	})
	return progress
}
