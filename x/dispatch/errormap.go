package dispatch

import "github.com/right-to-ask/rta/core"

// mapError delegates to core.MapError so every package's handler
// answers a given typed error with the same HTTP status.
func mapError(err error) (int, string) {
	return core.MapError(err)
}
