package http

import (
	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/dashboard"
)

var categoryLabels = map[core.Category]string{
	core.Food:      "Comida",
	core.Housing:   "Vivienda",
	core.Transport: "Transporte",
	core.Leisure:   "Ocio",
	core.Bills:     "Facturas",
	core.Health:    "Salud",
	core.Salary:    "Nómina",
	core.Freelance: "Freelance",
	core.Other:     "Otros",
}

type option struct {
	Value, Label string
}

type authView struct {
	Email string
	Error string
}

type transactionView struct {
	ID          int64
	Description string
	Date        string
	Amount      string
	Category    string
	Income      bool
}

type ledgerView struct {
	Transactions []transactionView
	Balance      string
	Positive     bool
	// Loading is set while a fetch for this workspace is in flight, so an
	// empty list is not shown as an empty account.
	Loading bool
	// OOB marks the balance card for an out-of-band swap.
	OOB bool
}

type formView struct {
	Edit       bool
	ID         int64
	Values     dashboard.Values
	Categories []option
	Error      string
	Submitting bool
}

type dashboardView struct {
	Email  string
	IsDemo bool
	Flash  string
	Ledger ledgerView
	Form   *formView
}

func newLedgerView(c *dashboard.Controller, oob bool) ledgerView {
	snap := c.Snapshot()
	v := ledgerView{
		Transactions: make([]transactionView, 0, len(snap.Transactions)),
		Balance:      core.FormatAmount(snap.Balance),
		Positive:     !snap.Balance.IsNegative(),
		Loading:      snap.Loading,
		OOB:          oob,
	}
	for _, tx := range snap.Transactions {
		label := categoryLabels[tx.Category]
		if label == "" {
			label = string(tx.Category)
		}
		v.Transactions = append(v.Transactions, transactionView{
			ID:          tx.ID,
			Description: tx.Description,
			Date:        tx.Date.String(),
			Amount:      core.FormatAmount(tx.Amount),
			Category:    label,
			Income:      tx.Kind == core.Income,
		})
	}
	return v
}

func newFormView(f *dashboard.Form, errMsg string) *formView {
	v := &formView{
		Edit:       f.Mode() == dashboard.ModeEdit,
		ID:         f.BoundID(),
		Values:     f.Values(),
		Error:      errMsg,
		Submitting: f.Submitting(),
	}
	for _, c := range core.Categories {
		v.Categories = append(v.Categories, option{Value: string(c), Label: categoryLabels[c]})
	}
	return v
}
