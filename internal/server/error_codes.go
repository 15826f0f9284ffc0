package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidID       = 1001
	ErrCodeMissingRequired = 1002
	ErrCodeRequestTooLarge = 1003
	ErrCodeNotAnImage      = 1004
	ErrCodeFileTooLarge    = 1005

	// Domain state (2xxx)
	ErrCodeNothingToDelete = 2001
	ErrCodeImageNotFound   = 2002
	ErrCodeGalleryNotFound = 2003
	ErrCodeQuotaExceeded   = 2101

	// Auth (3xxx)
	ErrCodeUnauthorized = 3001

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
	ErrCodeStorageIO    = 4003
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 404:
		return ErrCodeImageNotFound
	case 413:
		return ErrCodeQuotaExceeded
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
