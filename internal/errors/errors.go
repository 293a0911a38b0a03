package errors

import (
	"fmt"
	"sort"
	"sync"
)

// EntityError is a failure attributed to one source entity.
type EntityError struct {
	ID   string    `json:"id"`
	Type ErrorType `json:"type"`
	Err  error     `json:"-"`
}

// Error implements the error interface
func (e EntityError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.ID, e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e EntityError) Unwrap() error {
	return e.Err
}

// Message returns the underlying error text, for JSON and HTML reports.
func (e EntityError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// ErrorCollector gathers entity errors from concurrent workers. Only the
// first error per entity is kept.
type ErrorCollector struct {
	errors map[string]EntityError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make(map[string]EntityError),
	}
}

// Add records err against the entity id.
func (ec *ErrorCollector) Add(id string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if _, exists := ec.errors[id]; exists {
		return
	}
	ec.errors[id] = EntityError{ID: id, Type: TypeOf(err), Err: err}
}

// Has reports whether id already has an error recorded.
func (ec *ErrorCollector) Has(id string) bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	_, ok := ec.errors[id]
	return ok
}

// GetErrors returns all collected errors sorted by entity id.
func (ec *ErrorCollector) GetErrors() []EntityError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]EntityError, 0, len(ec.errors))
	for _, e := range ec.errors {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors) > 0
}

// Len returns the number of entities with errors.
func (ec *ErrorCollector) Len() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors)
}
