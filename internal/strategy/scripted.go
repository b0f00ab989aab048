package strategy

import (
	"gridtrader/internal/model"
)

// Scripted replays a fixed action sequence, one per bar, holding once
// the script runs out. It stands in for an external signal feed in
// tests and dry runs.
type Scripted struct {
	actions []Action
	next    int
}

func NewScripted(actions ...Action) *Scripted {
	return &Scripted{actions: actions}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) OnCandle(model.KLine) Action {
	if s.next >= len(s.actions) {
		return ActionHold
	}
	a := s.actions[s.next]
	s.next++
	return a
}
