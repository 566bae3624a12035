package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	Food      Category = "Food"
	Housing   Category = "Housing"
	Transport Category = "Transport"
	Leisure   Category = "Leisure"
	Bills     Category = "Bills"
	Health    Category = "Health"
	Salary    Category = "Salary"
	Freelance Category = "Freelance"
	Other     Category = "Other"
)

// DateLayout is the wire and form representation of a calendar date.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds the free-text description.
const MaxDescriptionLength = 200

type (
	Kind     string
	Category string

	Date struct {
		time.Time
	}

	User struct {
		ID        string
		Email     string
		IsDemo    bool
		CreatedAt time.Time
	}

	// UserMetadata is attached to a user at sign-up.
	UserMetadata struct {
		IsDemo bool
	}

	// Session is the token/user bundle issued by the auth backend.
	Session struct {
		AccessToken string
		IssuedAt    time.Time
		ExpiresAt   time.Time
		User        User
	}

	Transaction struct {
		ID          int64
		UserID      string
		Description string
		Amount      decimal.Decimal
		Kind        Kind
		Date        Date
		Category    Category
		CreatedAt   time.Time
	}

	// TransactionInput is the payload of an insert or update.
	TransactionInput struct {
		UserID      string
		Description string
		Amount      decimal.Decimal
		Kind        Kind
		Date        Date
		Category    Category
	}
)

var (
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidDate        = errors.New("invalid date")
	ErrMissingOwner       = errors.New("missing owner")

	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
)

// Categories lists the fixed category enumeration in display order.
// The first entry is the default for new transactions.
var Categories = []Category{Food, Housing, Transport, Leisure, Bills, Health, Salary, Freelance, Other}

// Kinds lists the accepted transaction kinds.
var Kinds = []Kind{Income, Expense}

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (c Category) Validate() error {
	for _, known := range Categories {
		if c == known {
			return nil
		}
	}
	return ErrInvalidCategory
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today truncates now to its calendar date in now's location.
func Today(now time.Time) Date {
	y, m, d := now.Date()
	return NewDate(y, int(m), d)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Valid reports whether the session carries a token that has not expired at now.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Input returns the mutable fields of t as a payload.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		UserID:      t.UserID,
		Description: t.Description,
		Amount:      t.Amount,
		Kind:        t.Kind,
		Date:        t.Date,
		Category:    t.Category,
	}
}

// Signed returns the amount with the sign of its kind: positive for income,
// negative for expense.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

func (in TransactionInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrEmptyDescription
	}
	if len(in.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if in.Amount.IsNegative() || !in.Amount.Equal(in.Amount.Round(2)) {
		return ErrInvalidAmount
	}
	if err := in.Kind.Validate(); err != nil {
		return err
	}
	if err := in.Date.Validate(); err != nil {
		return err
	}
	return in.Category.Validate()
}

// IsValidationError reports whether err stems from payload validation.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrEmptyDescription, ErrDescriptionTooLong, ErrInvalidAmount, ErrInvalidKind,
		ErrInvalidCategory, ErrInvalidDate, ErrMissingOwner, ErrInvalidEmail, ErrWeakPassword,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
