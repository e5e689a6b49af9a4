// Package ids generates identifiers for dispatches and emitted messages.
package ids

import "github.com/oklog/ulid/v2"

// New returns a 26-character ULID. Values produced by one process are
// strictly increasing, so dispatch IDs sort in start order in logs.
func New() string {
	return ulid.Make().String()
}
