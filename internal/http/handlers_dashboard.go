package http

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/dashboard"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/session"
)

// handleDashboard renders the full page. The list itself is loaded by the
// transactions partial once the page is shown.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, ws *Workspace, sess *core.Session) {
	view := dashboardView{
		Email:  sess.User.Email,
		IsDemo: sess.User.IsDemo,
		Flash:  ws.TakeFlash(),
		Ledger: newLedgerView(ws.Dashboard, false),
	}
	if ws.Dashboard.IsOpen() {
		view.Form = newFormView(ws.Dashboard.Form(), "")
	}
	s.writePage(w, r, http.StatusOK, "dashboard.html", view)
}

// handleTransactionList refreshes the set and renders it. A failed fetch is
// logged by the controller and the previous set is shown.
func (s *Server) handleTransactionList(w http.ResponseWriter, r *http.Request, ws *Workspace, _ *core.Session) {
	if err := ws.Dashboard.Fetch(r.Context()); errors.Is(err, dashboard.ErrNoSession) {
		redirect(w, r, session.LoginPath)
		return
	}
	s.writeLedger(w, r, ws, NewReply())
}

func (s *Server) handleOpenCreate(w http.ResponseWriter, r *http.Request, ws *Workspace, _ *core.Session) {
	ws.Dashboard.OpenCreate()
	s.writeForm(w, r, ws, http.StatusOK, "")
}

func (s *Server) handleOpenEdit(w http.ResponseWriter, r *http.Request, ws *Workspace, _ *core.Session) {
	id, err := ParseTransactionID(r)
	if err == nil {
		_, err = ws.Dashboard.OpenEditByID(id)
	}
	if err != nil {
		ErrorResponse(statusFor(err), userMessage(err)).Write(w)
		return
	}
	s.writeForm(w, r, ws, http.StatusOK, "")
}

func (s *Server) handleCloseForm(w http.ResponseWriter, r *http.Request, ws *Workspace, _ *core.Session) {
	ws.Dashboard.CloseForm()
	NewReply().TriggerFormClosed().BodyHTML("").Write(w)
}

// handleSaveTransaction submits the form. The posted id decides between
// insert and update, whatever another tab of the browser opened since. On
// success the refreshed list replaces the old one and the modal is emptied;
// on failure the form is shown again with the entered values.
func (s *Server) handleSaveTransaction(w http.ResponseWriter, r *http.Request, ws *Workspace, _ *core.Session) {
	sub, err := ParseTransactionSubmission(r)
	if errors.Is(err, errInvalidID) {
		ErrorResponse(statusFor(err), userMessage(err)).Write(w)
		return
	}
	if err != nil {
		BadRequestError("Formato de solicitud no válido.").Write(w)
		return
	}

	form, err := ws.Dashboard.FormFor(sub.ID)
	if err != nil {
		ErrorResponse(statusFor(err), userMessage(err)).Write(w)
		return
	}
	operation := log.OpCreate
	if form.Mode() == dashboard.ModeEdit {
		operation = log.OpUpdate
	}

	saved, err := form.Submit(r.Context(), sub.Values)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Transaction not saved",
			log.FieldOperation, operation,
			log.FieldError, err.Error(),
			log.FieldErrorType, errorType(err))
		if statusFor(err) == http.StatusUnauthorized {
			redirect(w, r, session.LoginPath)
			return
		}
		s.writeForm(w, r, ws, statusFor(err), userMessage(err))
		return
	}

	atomic.AddInt64(&s.appMetrics.mutations, 1)
	s.audit.LogMutation(r.Context(), operation, saved.UserID,
		log.NewFields().WithTransaction(saved.ID, string(saved.Kind), string(saved.Category), saved.Date.String(), saved.Amount.StringFixed(2)))

	s.writeLedger(w, r, ws, NewReply().
		Retarget("#ledger").
		TriggerFormClosed().
		TriggerSuccessNotification("Movimiento guardado."))
}

// handleDeleteTransaction deletes a row once the browser confirmed it.
// Without confirmation nothing happens.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, ws *Workspace, sess *core.Session) {
	id, err := ParseTransactionID(r)
	if err != nil {
		ErrorResponse(statusFor(err), userMessage(err)).Write(w)
		return
	}

	confirmed := ParseConfirmed(r)
	deleted, err := ws.Dashboard.Delete(r.Context(), id, dashboard.ConfirmFunc(func(string) bool {
		return confirmed
	}))
	if err != nil {
		ErrorResponse(statusFor(err), "No se pudo eliminar el movimiento.").Write(w)
		return
	}
	if !deleted {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	atomic.AddInt64(&s.appMetrics.mutations, 1)
	s.audit.LogMutation(r.Context(), log.OpDelete, sess.User.ID, log.NewFields().WithTransaction(id, "", "", "", ""))
	s.writeLedger(w, r, ws, NewReply().TriggerSuccessNotification("Movimiento eliminado."))
}

// writeLedger renders the list with an out-of-band balance card.
func (s *Server) writeLedger(w http.ResponseWriter, r *http.Request, ws *Workspace, b *Reply) {
	view := newLedgerView(ws.Dashboard, true)
	body, err := s.render("ledger", view)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Ledger render failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err.Error())
		InternalServerError(userMessage(err)).Write(w)
		return
	}
	b.TriggerTransactionsChanged(len(view.Transactions)).BodyHTML(string(body)).Write(w)
}

func (s *Server) writeForm(w http.ResponseWriter, r *http.Request, ws *Workspace, status int, errMsg string) {
	body, err := s.render("transaction_form", newFormView(ws.Dashboard.Form(), errMsg))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Form render failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err.Error())
		InternalServerError(userMessage(err)).Write(w)
		return
	}
	b := NewReply().Status(status).BodyHTML(string(body))
	if errMsg != "" {
		b.TriggerErrorNotification(errMsg)
	}
	b.Write(w)
}
