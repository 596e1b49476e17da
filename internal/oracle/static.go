package oracle

import (
	"context"
	"sync/atomic"

	"github.com/updownhq/updown/internal/domain"
)

// StaticSource reports a manually set value. Dev mode drives it with a
// random walk so rounds settle with varied outcomes.
type StaticSource struct {
	value atomic.Int64
}

// NewStaticSource creates a StaticSource reporting the initial value.
func NewStaticSource(initial int64) *StaticSource {
	s := &StaticSource{}
	s.value.Store(initial)
	return s
}

var _ domain.ReportSource = (*StaticSource)(nil)

// Set replaces the reported value.
func (s *StaticSource) Set(v int64) {
	s.value.Store(v)
}

// Report returns the current value.
func (s *StaticSource) Report(context.Context) (int64, error) {
	return s.value.Load(), nil
}
