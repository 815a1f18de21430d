package task

import "github.com/jeremybastin1207/mindia/internal/merrors"

// Sentinel error constructors for the Task Repository/Scheduler's
// documented failure modes (spec §4.5, §4.6, §7).

func errNotFound(op string, cause error) error {
	return merrors.New(merrors.NotFound, op, cause)
}

func errInvalidInput(op string, cause error) error {
	return merrors.New(merrors.InvalidInput, op, cause)
}

func errConflict(op string, cause error) error {
	return merrors.New(merrors.Conflict, op, cause)
}

func errDatabase(op string, cause error) error {
	return merrors.New(merrors.DatabaseError, op, cause)
}
