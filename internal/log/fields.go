package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldSnapshotID  = "snapshot_id"
	FieldVariant     = "variant"
	FieldManagerID   = "manager_id"
	FieldManagerName = "manager_name"
	FieldPage        = "page"
	FieldRows        = "rows"
	FieldWarnings    = "warnings"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentTracker   = "tracker"
	ComponentBuilder   = "builder"
	ComponentRefresher = "refresher"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentSheets    = "sheets"
	ComponentExport    = "export"
)

// Operations defines standard operation names
const (
	OpFetchManagers = "fetch_managers"
	OpFetchPage     = "fetch_page"
	OpBuild         = "build"
	OpPublish       = "publish"
	OpExport        = "export"
	OpRender        = "render"
	OpShutdown      = "shutdown"
	OpStartup       = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithManager adds the manager being walked and the page reached
func (f LogFields) WithManager(id, name string, page int) LogFields {
	f[FieldManagerID] = id
	f[FieldManagerName] = name
	f[FieldPage] = page
	return f
}

// WithSnapshot adds snapshot identification fields
func (f LogFields) WithSnapshot(id uint64, rows, warnings int) LogFields {
	f[FieldSnapshotID] = id
	f[FieldRows] = rows
	f[FieldWarnings] = warnings
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
