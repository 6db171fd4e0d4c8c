package odoo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xmlrpcReply(value string) string {
	return `<?xml version="1.0"?><methodResponse><params><param><value>` + value + `</value></param></params></methodResponse>`
}

func xmlrpcFault(code int, msg string) string {
	return fmt.Sprintf(`<?xml version="1.0"?><methodResponse><fault><value><struct>`+
		`<member><name>faultCode</name><value><int>%d</int></value></member>`+
		`<member><name>faultString</name><value><string>%s</string></value></member>`+
		`</struct></value></fault></methodResponse>`, code, msg)
}

type fakeServer struct {
	authReply string
	objects   func(body string) string
	bodies    []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	body := string(raw)
	f.bodies = append(f.bodies, body)
	w.Header().Set("Content-Type", "text/xml")
	switch r.URL.Path {
	case "/xmlrpc/2/common":
		_, _ = io.WriteString(w, f.authReply)
	case "/xmlrpc/2/object":
		_, _ = io.WriteString(w, f.objects(body))
	default:
		http.NotFound(w, r)
	}
}

func TestConnect_Authenticates(t *testing.T) {
	fake := &fakeServer{authReply: xmlrpcReply("<int>7</int>")}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := Connect(context.Background(), Credentials{URL: srv.URL + "/", DB: "prod", User: "admin", Password: "secret"})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 7, s.UID())
	require.Len(t, fake.bodies, 1)
	assert.Contains(t, fake.bodies[0], "authenticate")
	assert.Contains(t, fake.bodies[0], "prod")
	assert.Contains(t, fake.bodies[0], "admin")
}

func TestConnect_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{authReply: xmlrpcReply("<boolean>0</boolean>")})
	defer srv.Close()

	_, err := Connect(context.Background(), Credentials{URL: srv.URL, DB: "prod", User: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestConnect_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	url := srv.URL
	srv.Close()

	_, err := Connect(context.Background(), Credentials{URL: url, DB: "prod", User: "admin", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.NotErrorIs(t, err, ErrAuthentication)
}

func TestConnect_MissingURL(t *testing.T) {
	_, err := Connect(context.Background(), Credentials{DB: "prod"})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestSession_SearchRead(t *testing.T) {
	fake := &fakeServer{
		authReply: xmlrpcReply("<int>2</int>"),
		objects: func(body string) string {
			return xmlrpcReply(`<array><data>` +
				`<value><struct>` +
				`<member><name>id</name><value><int>1</int></value></member>` +
				`<member><name>name</name><value><string>Basic</string></value></member>` +
				`<member><name>code</name><value><string>BASIC</string></value></member>` +
				`<member><name>parent_id</name><value><boolean>0</boolean></value></member>` +
				`</struct></value>` +
				`<value><struct>` +
				`<member><name>id</name><value><int>2</int></value></member>` +
				`<member><name>name</name><value><string>Gross</string></value></member>` +
				`<member><name>code</name><value><string>GROSS</string></value></member>` +
				`<member><name>parent_id</name><value><array><data><value><int>1</int></value><value><string>Basic</string></value></data></array></value></member>` +
				`</struct></value>` +
				`</data></array>`)
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := Connect(context.Background(), Credentials{URL: srv.URL, DB: "prod", User: "admin", Password: "secret"})
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.SearchRead(context.Background(), ModelRuleCategory, SearchOptions{
		Fields: []string{"id", "name", "code", "parent_id"},
		Order:  "id",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].ID())
	assert.Equal(t, "BASIC", rows[0].String("code"))
	_, hasParent := rows[0].Many2One("parent_id")
	assert.False(t, hasParent)

	parent, ok := rows[1].Many2One("parent_id")
	require.True(t, ok)
	assert.Equal(t, Ref{ID: 1, Label: "Basic"}, parent)

	last := fake.bodies[len(fake.bodies)-1]
	assert.Contains(t, last, "execute_kw")
	assert.Contains(t, last, "search_read")
	assert.Contains(t, last, ModelRuleCategory)
	assert.Contains(t, last, "parent_id")
}

func TestSession_ExecuteFault(t *testing.T) {
	fake := &fakeServer{
		authReply: xmlrpcReply("<int>2</int>"),
		objects: func(string) string {
			return xmlrpcFault(2, "Invalid field 'amount_percentage_base'")
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := Connect(context.Background(), Credentials{URL: srv.URL, DB: "prod", User: "admin", Password: "secret"})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), ModelRule, "search_read", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hr.salary.rule.search_read")
}

func TestSession_ExternalID(t *testing.T) {
	fake := &fakeServer{
		authReply: xmlrpcReply("<int>2</int>"),
		objects: func(body string) string {
			if strings.Contains(body, "<int>42</int>") {
				return xmlrpcReply(`<array><data><value><struct>` +
					`<member><name>id</name><value><int>900</int></value></member>` +
					`<member><name>module</name><value><string>hr_payroll</string></value></member>` +
					`<member><name>name</name><value><string>BASIC</string></value></member>` +
					`</struct></value></data></array>`)
			}
			return xmlrpcReply(`<array><data></data></array>`)
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := Connect(context.Background(), Credentials{URL: srv.URL, DB: "prod", User: "admin", Password: "secret"})
	require.NoError(t, err)

	xmlid, err := s.ExternalID(context.Background(), ModelRuleCategory, 42)
	require.NoError(t, err)
	assert.Equal(t, "hr_payroll.BASIC", xmlid)

	xmlid, err = s.ExternalID(context.Background(), ModelRuleCategory, 43)
	require.NoError(t, err)
	assert.Empty(t, xmlid)

	last := fake.bodies[len(fake.bodies)-1]
	assert.Contains(t, last, ModelData)
	assert.Contains(t, last, "res_id")
}

func TestSession_CanceledContext(t *testing.T) {
	s := &Session{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Execute(ctx, ModelRule, "search_read", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_FieldsGet(t *testing.T) {
	fake := &fakeServer{
		authReply: xmlrpcReply("<int>2</int>"),
		objects: func(string) string {
			return xmlrpcReply(`<struct><member><name>code</name><value><struct>` +
				`<member><name>type</name><value><string>char</string></value></member>` +
				`</struct></value></member></struct>`)
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := Connect(context.Background(), Credentials{URL: srv.URL, DB: "prod", User: "admin", Password: "secret"})
	require.NoError(t, err)

	fields, err := s.FieldsGet(context.Background(), ModelRule, []string{"type"})
	require.NoError(t, err)
	require.Contains(t, fields, "code")
	assert.Equal(t, "char", Record(fields["code"].(map[string]any)).String("type"))

	last := fake.bodies[len(fake.bodies)-1]
	assert.Contains(t, last, "fields_get")
	assert.Contains(t, last, "attributes")
}
