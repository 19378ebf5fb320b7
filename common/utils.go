// utils.go
// Purpose: Copy helpers for state handed across package boundaries, so
// callers never alias maps owned by the dispatcher.
package common

import (
	"log/slog"
	"maps"

	"github.com/tiendc/go-deepcopy"
)

// CopyAction returns a deep copy of a, including nested params. If the
// deep copy fails the params map is still cloned one level down.
func CopyAction(a Action) Action {
	var cp Action
	if err := deepcopy.Copy(&cp, a); err != nil {
		slog.Error("copy action", "id", a.ID, "err", err)
		a.Params = maps.Clone(a.Params)
		return a
	}
	return cp
}

// CopyActions deep copies every action in order.
func CopyActions(actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		out = append(out, CopyAction(a))
	}
	return out
}
