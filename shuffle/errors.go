package shuffle

// ValidationError reports that a cross-party hash comparison mismatched
// during shuffle verification. It indicates either active malice or
// unrecoverable corruption; the enclosing query must be abandoned, never
// partially accepted.
type ValidationError struct {
	// Reason names exactly which comparison failed.
	Reason string
}

func (e *ValidationError) Error() string {
	return "shuffle validation failed: " + e.Reason
}
