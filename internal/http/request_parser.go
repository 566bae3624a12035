package http

// Utilities for reading form and JSON request bodies into the values the
// dashboard and the auth pages work with.

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Bota93/spendesk/internal/dashboard"
)

// maxBodyBytes bounds every parsed request body.
const maxBodyBytes = 64 << 10

var errInvalidID = errors.New("invalid transaction id")

// RequestBodyParser reads a request body once and exposes its fields,
// whether it was form-encoded (plain forms and htmx) or JSON.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetRaw returns the value without sanitizing. Passwords are read this way.
func (p *RequestBodyParser) GetRaw(key string) string {
	if p.jsonData != nil {
		return stringValue(p.jsonData[key])
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// TransactionSubmission is a posted transaction form: the id of the record
// it was opened for, 0 in create mode, and the entered values.
type TransactionSubmission struct {
	ID     int64
	Values dashboard.Values
}

// ParseTransactionSubmission reads the fields of the transaction form.
func ParseTransactionSubmission(r *http.Request) (TransactionSubmission, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return TransactionSubmission{}, err
	}
	var id int64
	if raw := p.Get("id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return TransactionSubmission{}, errInvalidID
		}
		id = n
	}
	return TransactionSubmission{
		ID: id,
		Values: dashboard.Values{
			Description: p.Get("description"),
			Amount:      p.Get("amount"),
			Date:        p.Get("date"),
			Kind:        p.Get("type"),
			Category:    p.Get("category"),
		},
	}, nil
}

// Credentials are the fields of the login and register forms.
type Credentials struct {
	Email    string
	Password string
}

func ParseCredentials(r *http.Request) (Credentials, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Email:    strings.ToLower(p.Get("email")),
		Password: p.GetRaw("password"),
	}, nil
}

// ParseConfirmed reports whether the delete request carries the browser's
// confirmation. htmx sends DELETE parameters in the query string.
func ParseConfirmed(r *http.Request) bool {
	v := sanitizeInput(r.URL.Query().Get("confirmed"))
	if v == "" {
		p := NewRequestBodyParser(r)
		if err := p.Parse(); err != nil {
			return false
		}
		v = p.Get("confirmed")
	}
	return v == "true" || v == "yes" || v == "1"
}

// ParseTransactionID reads the {id} path segment.
func ParseTransactionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
