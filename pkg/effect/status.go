package effect

import "strings"

// Status is one of the closed set of status effects the world knows how to
// render and simulate.
type Status string

const (
	StatusBurn   Status = "burn"
	StatusFreeze Status = "freeze"
	StatusSlow   Status = "slow"
	StatusPoison Status = "poison"
	StatusStun   Status = "stun"
	StatusShock  Status = "shock"
	StatusWet    Status = "wet"
	StatusBleed  Status = "bleed"
	StatusWeaken Status = "weaken"
	StatusRoot   Status = "root"
)

// Stacking decides what a reapplied status does to an existing one.
type Stacking string

const (
	StackRefresh Stacking = "refresh"
	StackStack   Stacking = "stack"
	StackReplace Stacking = "replace"
)

var defaultStacking = map[Status]Stacking{
	StatusBurn:   StackStack,
	StatusFreeze: StackRefresh,
	StatusSlow:   StackRefresh,
	StatusPoison: StackStack,
	StatusStun:   StackReplace,
	StatusShock:  StackRefresh,
	StatusWet:    StackRefresh,
	StatusBleed:  StackStack,
	StatusWeaken: StackRefresh,
	StatusRoot:   StackReplace,
}

// Statuses returns every known status in a stable order.
func Statuses() []Status {
	return []Status{
		StatusBurn, StatusFreeze, StatusSlow, StatusPoison, StatusStun,
		StatusShock, StatusWet, StatusBleed, StatusWeaken, StatusRoot,
	}
}

// ParseStatus normalizes name and reports whether it is a known status.
func ParseStatus(name string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(name)))
	_, ok := defaultStacking[s]
	return s, ok
}

// DefaultStacking returns the table policy for s.
func (s Status) DefaultStacking() Stacking {
	if st, ok := defaultStacking[s]; ok {
		return st
	}
	return StackRefresh
}

// ParseStacking accepts refresh, stack or replace.
func ParseStacking(name string) (Stacking, bool) {
	switch st := Stacking(strings.ToLower(strings.TrimSpace(name))); st {
	case StackRefresh, StackStack, StackReplace:
		return st, true
	}
	return "", false
}
