package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldPeriod      = "period"
	FieldCategoryID  = "category_id"
	FieldExpenseID   = "expense_id"
	FieldAmountCents = "amount_cents"
	FieldOutcome     = "outcome"
	FieldKey         = "key"
	FieldCount       = "count"
)

// Component names
const (
	ComponentApp      = "app"
	ComponentBudget   = "budget"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentBackend  = "backend"
	ComponentRollover = "rollover"
)

// Operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpRollover = "rollover"
	OpPublish  = "publish"
	OpExport   = "export"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields builds a set of structured log attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError is a no-op for a nil error.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithPeriod(period string) LogFields {
	f[FieldPeriod] = period
	return f
}

func (f LogFields) WithCategory(id string) LogFields {
	f[FieldCategoryID] = id
	return f
}

func (f LogFields) WithExpense(id, categoryID string, amountCents int64) LogFields {
	f[FieldExpenseID] = id
	f[FieldCategoryID] = categoryID
	f[FieldAmountCents] = amountCents
	return f
}

// ToSlice converts LogFields to alternating key/value arguments for slog.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
