package odoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kolo/xmlrpc"
)

// Models touched by the exporter.
const (
	ModelRuleCategory   = "hr.salary.rule.category"
	ModelStructure      = "hr.payroll.structure"
	ModelRule           = "hr.salary.rule"
	ModelParameter      = "hr.rule.parameter"
	ModelParameterValue = "hr.rule.parameter.value"
	ModelInputType      = "hr.payslip.input.type"
	ModelRuleInput      = "hr.salary.rule.input"
	ModelData           = "ir.model.data"
)

var (
	ErrConnection     = errors.New("connection error")
	ErrAuthentication = errors.New("authentication failed, check credentials")
)

// Credentials identify the server, database and user for a session.
type Credentials struct {
	URL      string
	DB       string
	User     string
	Password string
}

// Caller executes model methods over the object endpoint.
type Caller interface {
	Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error)
}

type rpcClient interface {
	Call(serviceMethod string, args any, reply any) error
	Close() error
}

// Session is an authenticated handle on the object endpoint.
type Session struct {
	creds  Credentials
	uid    int
	object rpcClient
}

// SearchOptions are the keyword arguments of search_read.
type SearchOptions struct {
	Domain []any
	Fields []string
	Order  string
	Limit  int
}

// Connect authenticates once against {url}/xmlrpc/2/common. There is no retry.
func Connect(ctx context.Context, creds Credentials) (*Session, error) {
	return connect(ctx, creds, nil)
}

func connect(ctx context.Context, creds Credentials, transport http.RoundTripper) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := strings.TrimRight(strings.TrimSpace(creds.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: server URL is required", ErrConnection)
	}

	common, err := xmlrpc.NewClient(base+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer common.Close()

	var reply any
	if err := common.Call("authenticate", []any{creds.DB, creds.User, creds.Password, map[string]any{}}, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	uid, ok := toInt(reply)
	if !ok || uid == 0 {
		return nil, fmt.Errorf("%w: %w", ErrConnection, ErrAuthentication)
	}

	object, err := xmlrpc.NewClient(base+"/xmlrpc/2/object", transport)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return &Session{creds: creds, uid: uid, object: object}, nil
}

func (s *Session) UID() int {
	return s.uid
}

func (s *Session) Close() error {
	if s == nil || s.object == nil {
		return nil
	}
	return s.object.Close()
}

// Execute runs execute_kw(db, uid, password, model, method, args, kwargs).
func (s *Session) Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	var reply any
	params := []any{s.creds.DB, s.uid, s.creds.Password, model, method, args, kwargs}
	if err := s.object.Call("execute_kw", params, &reply); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", model, method, err)
	}
	return reply, nil
}

// SearchRead runs search_read on model and decodes the rows.
func SearchRead(ctx context.Context, c Caller, model string, opts SearchOptions) ([]Record, error) {
	domain := opts.Domain
	if domain == nil {
		domain = []any{}
	}
	kwargs := map[string]any{}
	if len(opts.Fields) > 0 {
		kwargs["fields"] = opts.Fields
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	reply, err := c.Execute(ctx, model, "search_read", []any{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	return DecodeRecords(reply)
}

func (s *Session) SearchRead(ctx context.Context, model string, opts SearchOptions) ([]Record, error) {
	return SearchRead(ctx, s, model, opts)
}

// FieldsGet returns the raw field metadata of model.
func FieldsGet(ctx context.Context, c Caller, model string, attributes []string) (map[string]any, error) {
	reply, err := c.Execute(ctx, model, "fields_get", []any{}, map[string]any{"attributes": attributes})
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return map[string]any{}, nil
	}
	fields, ok := reply.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected fields_get reply of type %T", reply)
	}
	return fields, nil
}

func (s *Session) FieldsGet(ctx context.Context, model string, attributes []string) (map[string]any, error) {
	return FieldsGet(ctx, s, model, attributes)
}

func (s *Session) ExternalID(ctx context.Context, model string, id int) (string, error) {
	return ExternalID(ctx, s, model, id)
}

// ExternalID returns the "module.name" XML ID recorded for a record in
// ir.model.data, or "" when the record has none.
func ExternalID(ctx context.Context, c Caller, model string, id int) (string, error) {
	rows, err := SearchRead(ctx, c, ModelData, SearchOptions{
		Domain: []any{
			[]any{"model", "=", model},
			[]any{"res_id", "=", id},
		},
		Fields: []string{"module", "name"},
		Limit:  1,
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	module, name := rows[0].String("module"), rows[0].String("name")
	if name == "" {
		return "", nil
	}
	if module == "" {
		return name, nil
	}
	return module + "." + name, nil
}
