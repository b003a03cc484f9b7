package export

import "errors"

// Sentinel errors for export operations.
var (
	ErrExportNotFound  = errors.New("scheduled export not found")
	ErrHistoryNotFound = errors.New("export history not found")
	// ErrClaimLost means another tick or process advanced the export first.
	ErrClaimLost       = errors.New("scheduled export already claimed")
	ErrInvalidSchedule = errors.New("invalid export schedule")
	ErrUnsupportedType = errors.New("unsupported export type")
)
