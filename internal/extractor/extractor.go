package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"payrollxml/internal/odoo"
)

// ErrFetch marks a required record set that could not be fetched.
var ErrFetch = errors.New("fetch failed")

// Tier names the projection that served a fetch.
type Tier string

const (
	TierPreferred Tier = "preferred"
	TierFallback  Tier = "fallback"
)

// Projection is a two-tier field contract: Preferred is tried first and, when
// the server rejects it, Fallback is tried once. An empty Fallback means the
// first failure is final.
type Projection struct {
	Preferred []string
	Fallback  []string
}

// Query selects the rows of one model.
type Query struct {
	Model  string
	Domain []any
	Order  string
}

// Result is the outcome of a successful fetch.
type Result struct {
	Records []odoo.Record
	Tier    Tier
	// PreferredErr is why the preferred projection was abandoned, if it was.
	PreferredErr error
}

// Warning is a non-fatal fetch problem.
type Warning struct {
	Model   string
	Message string
	Err     error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Message, w.Err)
}

// Extractor runs the read-only queries against a session, one after another.
type Extractor struct {
	caller   odoo.Caller
	logger   *log.Logger
	warnings []Warning
}

// NewExtractor creates an extractor. A nil logger logs to the standard logger.
func NewExtractor(caller odoo.Caller, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{caller: caller, logger: logger}
}

// Warnings returns the non-fatal problems met so far, in order.
func (e *Extractor) Warnings() []Warning {
	return append([]Warning(nil), e.warnings...)
}

func (e *Extractor) warn(model, message string, err error) {
	e.warnings = append(e.warnings, Warning{Model: model, Message: message, Err: err})
	e.logger.Printf("Warning: %s: %v", message, err)
}

// Fetch runs q with the preferred projection and falls back to the reduced one.
func (e *Extractor) Fetch(ctx context.Context, q Query, p Projection) (*Result, error) {
	rows, err := e.searchRead(ctx, q, p.Preferred)
	if err == nil {
		return &Result{Records: rows, Tier: TierPreferred}, nil
	}
	if len(p.Fallback) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, q.Model, err)
	}

	e.warn(q.Model, "Some fields not available, using basic fields", err)
	rows, fallbackErr := e.searchRead(ctx, q, p.Fallback)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, q.Model, fallbackErr)
	}
	return &Result{Records: rows, Tier: TierFallback, PreferredErr: err}, nil
}

func (e *Extractor) searchRead(ctx context.Context, q Query, fields []string) ([]odoo.Record, error) {
	return odoo.SearchRead(ctx, e.caller, q.Model, odoo.SearchOptions{
		Domain: q.Domain,
		Fields: fields,
		Order:  q.Order,
	})
}

// bestEffort fetches an optional record set. Failures are logged and read as
// an empty set.
func (e *Extractor) bestEffort(ctx context.Context, q Query, fields []string, label string) ([]odoo.Record, bool) {
	rows, err := e.searchRead(ctx, q, fields)
	if err != nil {
		e.warn(q.Model, "Could not fetch "+label, err)
		return nil, false
	}
	return rows, true
}
