package media

import "github.com/jeremybastin1207/mindia/internal/merrors"

// Sentinel error constructors for the Media Repository's documented
// failure modes (spec §4.2): NotFound, InvalidMetadata,
// MetadataKeyLimitExceeded, StorageError, Internal.

func errNotFound(op string, cause error) error {
	return merrors.New(merrors.NotFound, op, cause)
}

func errInvalidMetadata(op string, cause error) error {
	return merrors.New(merrors.InvalidInput, op, cause)
}

func errMetadataKeyLimitExceeded(op string, cause error) error {
	return merrors.New(merrors.PayloadTooLarge, op, cause)
}

func errStorage(op string, cause error) error {
	return merrors.New(merrors.StorageError, op, cause)
}

func errDatabase(op string, cause error) error {
	return merrors.New(merrors.DatabaseError, op, cause)
}

func errInternal(op string, cause error) error {
	return merrors.New(merrors.Internal, op, cause)
}
