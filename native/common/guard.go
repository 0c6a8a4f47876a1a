package common

import "strings"

var ErrModulePaused = NewError(KindPrecondition, "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses is a static pause table keyed by module name.
type Pauses map[string]bool

func (p Pauses) IsPaused(module string) bool {
	return p[strings.ToLower(strings.TrimSpace(module))]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
