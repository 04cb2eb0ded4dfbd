package config

const (
	// MaxFilenameLength is the maximum length for uploaded filenames.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255); longer names are
	// rejected rather than truncated so the stored name always matches
	// what the client sent.
	MaxFilenameLength = 255

	// MaxHistoryPageSize caps the page size of the conversion-history
	// endpoint. Larger requests are clamped, not rejected.
	MaxHistoryPageSize = 100

	// DefaultProPagesLimit is the monthly page budget granted to new pro
	// subscriptions.
	DefaultProPagesLimit = 1000
)
