package memlist

import "errors"

var (
	// ErrPrecondition is the "Precondition" error kind from spec §7:
	// an install was attempted with an empty picked set, or with a
	// picked set that does not match memtables currently
	// flush_in_progress, or while an install was already in flight.
	ErrPrecondition = errors.New("memlist: precondition violated")

	// ErrInstallIO is the "InstallIO" error kind from spec §7: the
	// manifest writer's LogAndApply call failed. The underlying error is
	// wrapped with %w so callers can still inspect it.
	ErrInstallIO = errors.New("memlist: manifest install failed")
)
