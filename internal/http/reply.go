// Package http serves the Spendesk web UI: server-rendered pages, HTMX
// partials for the dashboard and the live session socket.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Events raised on the page through HX-Trigger. The ledger listens for
// transactions:changed, the modal for form:closed and the toast area for
// show-notification.
const (
	EventTransactionsChanged = "transactions:changed"
	EventFormClosed          = "form:closed"
	EventShowNotification    = "show-notification"
)

type toastKind string

const (
	toastSuccess toastKind = "success"
	toastError   toastKind = "error"
)

type toast struct {
	Kind     toastKind `json:"type"`
	Message  string    `json:"message"`
	Duration int       `json:"duration"`
}

// Reply is a partial sent back to htmx after a dashboard action. Headers are
// written before the status, so every trigger and redirect set on it reaches
// the browser together with the fragment.
type Reply struct {
	status  int
	headers http.Header
	events  map[string]any
	body    []byte
}

func NewReply() *Reply {
	return &Reply{status: http.StatusOK, headers: http.Header{}, events: map[string]any{}}
}

func (b *Reply) Status(code int) *Reply {
	b.status = code
	return b
}

func (b *Reply) Header(name, value string) *Reply {
	b.headers.Set(name, value)
	return b
}

// Retarget swaps the fragment into selector instead of the element that
// issued the request. Saving from the modal uses it to refresh the ledger.
func (b *Reply) Retarget(selector string) *Reply {
	return b.Header("HX-Retarget", selector)
}

// Redirect makes htmx leave the page, used when a partial request finds the
// session gone.
func (b *Reply) Redirect(location string) *Reply {
	return b.Header("HX-Redirect", location)
}

// TriggerTransactionsChanged carries the number of rows now in the ledger.
func (b *Reply) TriggerTransactionsChanged(count int) *Reply {
	b.events[EventTransactionsChanged] = map[string]int{"count": count}
	return b
}

func (b *Reply) TriggerFormClosed() *Reply {
	b.events[EventFormClosed] = struct{}{}
	return b
}

func (b *Reply) TriggerSuccessNotification(message string) *Reply {
	b.events[EventShowNotification] = toast{Kind: toastSuccess, Message: message, Duration: 3000}
	return b
}

// TriggerErrorNotification keeps the toast on screen longer than a success.
func (b *Reply) TriggerErrorNotification(message string) *Reply {
	b.events[EventShowNotification] = toast{Kind: toastError, Message: message, Duration: 5000}
	return b
}

func (b *Reply) BodyHTML(html string) *Reply {
	b.headers.Set("Content-Type", "text/html; charset=utf-8")
	b.body = []byte(html)
	return b
}

func (b *Reply) Write(w http.ResponseWriter) {
	for name, values := range b.headers {
		w.Header()[name] = values
	}
	if len(b.events) > 0 {
		if raw, err := json.Marshal(b.events); err == nil {
			w.Header().Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message as an alert in place of the fragment and
// raises it as an error toast. The alert text is escaped.
func ErrorResponse(status int, message string) *Reply {
	return NewReply().
		Status(status).
		TriggerErrorNotification(message).
		BodyHTML(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *Reply {
	return ErrorResponse(http.StatusBadRequest, message)
}

func InternalServerError(message string) *Reply {
	return ErrorResponse(http.StatusInternalServerError, message)
}
