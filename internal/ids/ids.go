// Package ids mints operator/caller-facing subscription identifiers.
// Internal arbitration keys off (adapter_mac, frontend_no) (spec §3); this
// id exists only so a CLI caller has something to hand back to
// unsubscribe. The teacher's go.mod declares github.com/google/uuid but no
// file imports it.
package ids

import "github.com/google/uuid"

// New mints a fresh subscription id.
func New() string {
	return uuid.NewString()
}
