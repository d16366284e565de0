package clod

// Error types attached with errors.WithType to every error returned by this
// package. errors.Type(err) recovers them.
const (
	// ErrTypeCapacityViolation marks a cluster that does not fit the vertex or
	// quad budget. Rerunning with the same input and budget fails the same way.
	ErrTypeCapacityViolation = "capacity_violation"

	// ErrTypeAllocationOverflow marks a write past a buffer sized at build time.
	ErrTypeAllocationOverflow = "allocation_overflow"

	// ErrTypeSceneClosed marks an Update on a scene whose workers are stopped.
	ErrTypeSceneClosed = "scene_closed"

	ErrTypeInvalidInput  = "invalid_input"
	ErrTypeMalformedData = "malformed_data"
)
