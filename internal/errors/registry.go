package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://vango.dev/docs/connect/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (C001-C019)
	// ============================================

	"C001": {
		Category: CategoryConfig,
		Message:  "Store not found",
		Detail:   "A connected consumer could not find a store. Mount it under a Provider or pass the store explicitly with connect.WithStore.",
		DocURL:   docBase + "C001",
	},
	"C002": {
		Category: CategoryConfig,
		Message:  "Invalid projection configuration",
		Detail:   "The state projection, dispatch projection and merge function must all be set.",
		DocURL:   docBase + "C002",
	},
	"C003": {
		Category: CategoryConfig,
		Message:  "Invalid parent",
		Detail:   "The parent a consumer mounts under is nil or has already been unmounted.",
		DocURL:   docBase + "C003",
	},
	"C010": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No connect.json was found.",
		DocURL:   docBase + "C010",
	},
	"C011": {
		Category: CategoryConfig,
		Message:  "Config parse error",
		Detail:   "The configuration file is not valid JSON or has fields of the wrong type.",
		DocURL:   docBase + "C011",
	},
	"C012": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A configuration value is out of range or not one of the accepted options.",
		DocURL:   docBase + "C012",
	},

	// ============================================
	// Runtime Errors (R001-R019)
	// ============================================

	"R001": {
		Category: CategoryStore,
		Message:  "Reducer dispatched an action",
		Detail:   "Reducers must be pure. Dispatch from an event handler or a store subscriber instead.",
		DocURL:   docBase + "R001",
	},
	"R002": {
		Category: CategoryRuntime,
		Message:  "Consumer unmounted",
		Detail:   "The consumer has been unmounted and can no longer derive or render props.",
		DocURL:   docBase + "R002",
	},
	"R003": {
		Category: CategoryRuntime,
		Message:  "Render failed",
		Detail:   "The consumer's render function returned an error.",
		DocURL:   docBase + "R003",
	},

	// ============================================
	// Persistence Errors (P001-P019)
	// ============================================

	"P001": {
		Category: CategoryPersist,
		Message:  "Snapshot save failed",
		Detail:   "The state snapshot could not be written to the configured sink.",
		DocURL:   docBase + "P001",
	},
	"P002": {
		Category: CategoryPersist,
		Message:  "Snapshot load failed",
		Detail:   "The state snapshot could not be read from the configured sink.",
		DocURL:   docBase + "P002",
	},
	"P003": {
		Category: CategoryPersist,
		Message:  "Snapshot decode failed",
		Detail:   "The stored snapshot is not valid JSON for the state type.",
		DocURL:   docBase + "P003",
	},

	// ============================================
	// CLI Errors (X001-X019)
	// ============================================

	"X001": {
		Category: CategoryCLI,
		Message:  "Scenario file not found",
		Detail:   "The scenario file passed to the command does not exist.",
		DocURL:   docBase + "X001",
	},
	"X002": {
		Category: CategoryCLI,
		Message:  "Invalid scenario",
		Detail:   "The scenario file could not be parsed or describes an invalid consumer tree.",
		DocURL:   docBase + "X002",
	},
	"X003": {
		Category: CategoryCLI,
		Message:  "Scenario step failed",
		Detail:   "A scenario step returned an error. The run continues with the next step.",
		DocURL:   docBase + "X003",
	},
}

// Register adds or replaces an error template.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
