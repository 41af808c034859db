package tracing

// Span attribute keys. These are the semantic conventions for launcher
// query spans.
const (
	// Launcher attributes
	AttrLauncherName     = "launcher.name"
	AttrLauncherPriority = "launcher.priority"

	// Query attributes
	AttrQueryName      = "query.name"
	AttrWarningCount   = "query.warning_count"
	AttrWarningMessage = "warning.message"

	// Facade attributes
	AttrInstanceID = "instance.id"

	// Error attributes
	AttrErrorMessage = "error.message"
	AttrUnavailable  = "error.unavailable"
)

// Span name prefixes and fixed names.
const (
	// SpanPrefixQuery prefixes query spans ("query.rank", "query.nodelist").
	SpanPrefixQuery = "query."

	// SpanSelect is the span wrapping launcher selection at facade
	// construction.
	SpanSelect = "launcher.select"

	// SpanBootstrap is the span wrapping one-time launcher setup.
	SpanBootstrap = "launcher.bootstrap"
)

// Event names for span events.
const (
	// EventWarningRaised marks an advisory raised during a query.
	EventWarningRaised = "warning.raised"
)
