package model

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// Severity classifies audit entries and log mirroring.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
