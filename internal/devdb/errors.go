package devdb

import "errors"

// Error kinds surfaced to callers of the reservation verbs (spec §7).
// stale_owner is deliberately absent: a dead owner's reservation is
// recovered silently by isSubLive and never surfaced as an error.
var (
	ErrNoFrontendAvailable = errors.New("devdb: no_frontend_available")
	ErrLNBCannotTuneMux    = errors.New("devdb: lnb_cannot_tune_mux")
	ErrDishMoveForbidden   = errors.New("devdb: dish_move_forbidden")
	ErrMuxAmbiguous        = errors.New("devdb: mux_ambiguous")
)

// IsSubscribed reports whether fe currently holds a live reservation (spec
// §3 FE lifecycle: a defunct owner's subscription is treated as free).
func IsSubscribed(fe FE) bool { return isSubLive(fe.Sub) }
