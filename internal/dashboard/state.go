package dashboard

import (
	"time"

	"fintrack/internal/client"
	"fintrack/internal/domain/expense"
)

// Phase is the global activity of the dashboard.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseLoadingList
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseLoadingList:
		return "loading"
	default:
		return "idle"
	}
}

type BannerKind string

const (
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

// Banner is the single message shown above the form. A new event replaces it.
type Banner struct {
	Kind BannerKind
	Text string
}

func (b Banner) IsZero() bool {
	return b.Text == ""
}

// RowState is the transient state of one expense row.
type RowState int

const (
	RowIdle RowState = iota
	RowUploading
	RowMessage
)

type RowStatus struct {
	State    RowState
	Progress int
	Message  Banner
}

// Form holds the create/edit inputs as typed by the user.
type Form struct {
	Category string
	Amount   string
	Date     string
	File     *client.File
}

// Snapshot is a copy of the controller state, safe to read after the call.
type Snapshot struct {
	OwnerID        string
	Phase          Phase
	Banner         Banner
	Expenses       []*expense.Expense
	Rows           map[string]RowStatus
	Form           Form
	EditingID      string
	ReceiptRef     string
	UploadProgress int
	Summary        expense.Summary
}

// Editing reports whether the form targets an existing record.
func (s Snapshot) Editing() bool {
	return s.EditingID != ""
}

// Row returns the status of a record, idle when none is tracked.
func (s Snapshot) Row(recordID string) RowStatus {
	return s.Rows[recordID]
}

// Timer is the part of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

// Clock supplies time to the controller so tests can drive row timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}
