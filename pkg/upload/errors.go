package upload

import "github.com/jeremybastin1207/mindia/internal/merrors"

func errNotFound(op string, cause error) error {
	return merrors.New(merrors.NotFound, op, cause)
}

func errInvalidInput(op string, cause error) error {
	return merrors.New(merrors.InvalidInput, op, cause)
}

func errConflict(op string, cause error) error {
	return merrors.New(merrors.Conflict, op, cause)
}

func errPayloadTooLarge(op string, cause error) error {
	return merrors.New(merrors.PayloadTooLarge, op, cause)
}

func errStorage(op string, cause error) error {
	return merrors.New(merrors.StorageError, op, cause)
}

func errDatabase(op string, cause error) error {
	return merrors.New(merrors.DatabaseError, op, cause)
}

func errUnrecoverable(op string, cause error) error {
	return merrors.New(merrors.Unrecoverable, op, cause)
}

func errInternal(op string, cause error) error {
	return merrors.New(merrors.Internal, op, cause)
}
