// Package dashboard keeps the client-side view of one owner's expenses and
// orchestrates uploads and mutations against the API.
package dashboard

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/client"
	"fintrack/internal/domain/expense"
	"fintrack/internal/domain/receipt"
	"fintrack/internal/shared/apperr"
	"fintrack/internal/shared/messages"
)

const (
	DefaultRowMessageTTL = 3 * time.Second
	maxParallelUploads   = 4
)

// ErrCancelled is returned when the user declines a confirmation.
var ErrCancelled = errors.New("cancelled by user")

// API is the subset of the HTTP client the controller calls.
type API interface {
	ListExpenses(ctx context.Context, ownerID string) ([]*expense.Expense, error)
	CreateExpense(ctx context.Context, in client.ExpenseInput) (*expense.Expense, error)
	UpdateExpense(ctx context.Context, ownerID, recordID string, in client.UpdateInput) (*expense.Expense, error)
	DeleteExpense(ctx context.Context, ownerID, recordID string) (*expense.Expense, error)
	UploadReceipt(ctx context.Context, ownerID string, f client.File, progress func(int)) (*receipt.Upload, error)
}

type Options struct {
	Confirmer     Confirmer
	Clock         Clock
	Messages      *messages.Messages
	RowMessageTTL time.Duration
	Logger        *zap.Logger
}

type row struct {
	status RowStatus
	timer  Timer
	gen    int
}

// Controller is safe for concurrent use. The expense list is a read-through
// cache: mutations never edit it, they trigger a reload.
type Controller struct {
	api     API
	confirm Confirmer
	clock   Clock
	msgs    messages.Messages
	rowTTL  time.Duration
	logger  *zap.Logger

	mu             sync.Mutex
	owner          string
	phase          Phase
	banner         Banner
	expenses       []*expense.Expense
	rows           map[string]*row
	form           Form
	editingID      string
	receiptRef     string
	uploadProgress int
}

func NewController(api API, opts Options) *Controller {
	c := &Controller{
		api:     api,
		confirm: opts.Confirmer,
		clock:   opts.Clock,
		msgs:    messages.Defaults(),
		rowTTL:  opts.RowMessageTTL,
		logger:  opts.Logger,
		owner:   expense.GuestOwnerID,
		rows:    make(map[string]*row),
	}
	if opts.Messages != nil {
		c.msgs = *opts.Messages
	}
	if c.confirm == nil {
		c.confirm = ConfirmFunc(func(string) bool { return false })
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.rowTTL <= 0 {
		c.rowTTL = DefaultRowMessageTTL
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.form = c.emptyForm()
	return c
}

// SetOwner switches the identity whose expenses are shown. An empty id becomes
// the guest placeholder, for which nothing is fetched.
func (c *Controller) SetOwner(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = expense.GuestOwnerID
	}

	c.mu.Lock()
	changed := ownerID != c.owner
	c.owner = ownerID
	if changed {
		c.expenses = nil
		c.phase = PhaseIdle
		c.resetFormLocked()
	}
	c.mu.Unlock()

	if expense.IsPlaceholderOwner(ownerID) {
		c.logger.Debug("waiting for a signed-in owner", zap.String("owner_id", ownerID))
		return nil
	}
	return c.Load(ctx)
}

// Load replaces the cached expenses with the server's list. On failure the
// cache is cleared so stale rows are never shown next to the error.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	owner := c.owner
	if expense.IsPlaceholderOwner(owner) {
		c.mu.Unlock()
		return apperr.Validation("owner identity is required")
	}
	c.phase = PhaseLoadingList
	c.mu.Unlock()

	expenses, err := c.api.ListExpenses(ctx, owner)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner != owner {
		// The owner changed while the request was in flight.
		c.logger.Debug("discarding expenses of previous owner", zap.String("owner_id", owner))
		return nil
	}
	c.phase = PhaseIdle
	if err != nil {
		c.logger.Warn("failed to load expenses", zap.String("owner_id", owner), zap.Error(err))
		c.expenses = nil
		c.banner = Banner{Kind: BannerError, Text: c.msgs.LoadFailed}
		return err
	}
	c.expenses = expenses
	return nil
}

// SetForm replaces the form inputs. Choosing a file clears the banner.
func (c *Controller) SetForm(f Form) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.File != nil && f.File != c.form.File {
		c.banner = Banner{}
	}
	c.form = f
}

// Submit creates a record, or updates the one being edited. An attached file
// is uploaded first and the submit stops if that fails.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	c.banner = Banner{}
	form := c.form
	if strings.TrimSpace(form.Category) == "" || strings.TrimSpace(form.Amount) == "" {
		c.banner = Banner{Kind: BannerError, Text: c.msgs.FieldsRequired}
		c.mu.Unlock()
		return apperr.Validation(c.msgs.FieldsRequired)
	}
	c.phase = PhaseSubmitting
	owner, editingID, ref := c.owner, c.editingID, c.receiptRef
	c.mu.Unlock()

	if form.File != nil {
		up, err := c.api.UploadReceipt(ctx, owner, *form.File, c.setUploadProgress)
		if err != nil {
			c.fail(c.msgs.FormUploadFailed, err)
			return err
		}
		ref = up.Ref
	}

	var err error
	var failText, okText string
	if editingID != "" {
		failText, okText = c.msgs.UpdateFailed, c.msgs.ExpenseUpdated
		in := client.UpdateInput{
			Category: expense.Some(form.Category),
			Amount:   expense.Some(form.Amount),
		}
		if form.Date != "" {
			in.Date = expense.Some(form.Date)
		}
		if ref != "" {
			in.ReceiptRef = expense.Some(ref)
		}
		_, err = c.api.UpdateExpense(ctx, owner, editingID, in)
	} else {
		failText, okText = c.msgs.AddFailed, c.msgs.ExpenseAdded
		in := client.ExpenseInput{
			OwnerID:  owner,
			Category: form.Category,
			Amount:   form.Amount,
			Date:     form.Date,
		}
		if ref != "" {
			in.ReceiptRef = &ref
		}
		_, err = c.api.CreateExpense(ctx, in)
	}
	if err != nil {
		c.fail(failText, err)
		return err
	}

	c.mu.Lock()
	c.resetFormLocked()
	c.phase = PhaseIdle
	c.banner = Banner{Kind: BannerSuccess, Text: okText}
	c.mu.Unlock()

	c.reload(ctx)
	return nil
}

// Edit loads a cached record into the form. It does not call the server.
func (c *Controller) Edit(recordID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.expenses, func(e *expense.Expense) bool { return e.RecordID == recordID })
	if i < 0 {
		c.banner = Banner{Kind: BannerError, Text: c.msgs.EditFailed}
		return expense.ErrExpenseNotFound
	}
	e := c.expenses[i]

	date := e.Date
	if date == "" {
		date = c.today()
	}
	c.form = Form{Category: e.Category, Amount: expense.FormatAmount(e.Amount), Date: date}
	c.receiptRef = ""
	if e.ReceiptRef != nil {
		c.receiptRef = *e.ReceiptRef
	}
	c.editingID = recordID
	c.uploadProgress = 0
	c.banner = Banner{Kind: BannerSuccess, Text: c.msgs.EditLoaded}
	return nil
}

// CancelEdit discards the form and leaves edit mode.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetFormLocked()
	c.banner = Banner{}
}

// Delete removes a record after the user confirms. A failed delete leaves the
// cache as it was.
func (c *Controller) Delete(ctx context.Context, recordID string) error {
	if !c.confirm.Confirm(c.msgs.ConfirmDelete) {
		return ErrCancelled
	}

	c.mu.Lock()
	c.phase = PhaseSubmitting
	c.banner = Banner{}
	owner := c.owner
	c.mu.Unlock()

	if _, err := c.api.DeleteExpense(ctx, owner, recordID); err != nil {
		c.fail(c.msgs.DeleteFailed, err)
		return err
	}

	c.mu.Lock()
	c.phase = PhaseIdle
	c.banner = Banner{Kind: BannerSuccess, Text: c.msgs.ExpenseDeleted}
	c.mu.Unlock()

	c.reload(ctx)
	return nil
}

// AttachReceipt uploads f and points an existing record at it. Progress and
// the outcome are tracked on that record's row only.
func (c *Controller) AttachReceipt(ctx context.Context, recordID string, f client.File) error {
	c.mu.Lock()
	owner := c.owner
	r := c.rowLocked(recordID)
	r.status = RowStatus{State: RowUploading}
	gen := r.gen
	c.mu.Unlock()

	progress := func(pct int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if r, ok := c.rows[recordID]; ok && r.gen == gen && r.status.State == RowUploading {
			r.status.Progress = pct
		}
	}

	up, err := c.api.UploadReceipt(ctx, owner, f, progress)
	if err == nil {
		_, err = c.api.UpdateExpense(ctx, owner, recordID, client.UpdateInput{ReceiptRef: expense.Some(up.Ref)})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.rows[recordID]; !ok || cur.gen != gen {
		// A newer attach owns the row; its result is the one to show.
		c.logger.Debug("superseded receipt attach finished",
			zap.String("record_id", recordID),
			zap.Bool("failed", err != nil),
		)
		return err
	}
	if err != nil {
		c.logger.Warn("failed to attach receipt",
			zap.String("owner_id", owner),
			zap.String("record_id", recordID),
			zap.Error(err),
		)
		c.rowMessageLocked(recordID, Banner{Kind: BannerError, Text: messages.Failure(c.msgs.UploadFailed, apperr.Message(err))})
		return err
	}

	for i, e := range c.expenses {
		if e.RecordID == recordID {
			updated := *e
			updated.ReceiptRef = &up.Ref
			c.expenses[i] = &updated
			break
		}
	}
	c.rowMessageLocked(recordID, Banner{Kind: BannerSuccess, Text: c.msgs.ReceiptUploaded})
	return nil
}

// AttachReceipts runs one AttachReceipt per record concurrently. Every upload
// runs to completion; the first error is returned.
func (c *Controller) AttachReceipts(ctx context.Context, files map[string]client.File) error {
	var g errgroup.Group
	g.SetLimit(maxParallelUploads)
	for recordID, f := range files {
		g.Go(func() error {
			return c.AttachReceipt(ctx, recordID, f)
		})
	}
	return g.Wait()
}

// Snapshot returns a copy of the state with expenses ordered newest first.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	expenses := make([]*expense.Expense, len(c.expenses))
	for i, e := range c.expenses {
		cp := *e
		expenses[i] = &cp
	}
	slices.SortStableFunc(expenses, func(a, b *expense.Expense) int {
		if n := strings.Compare(b.Date, a.Date); n != 0 {
			return n
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	rows := make(map[string]RowStatus, len(c.rows))
	for id, r := range c.rows {
		rows[id] = r.status
	}

	return Snapshot{
		OwnerID:        c.owner,
		Phase:          c.phase,
		Banner:         c.banner,
		Expenses:       expenses,
		Rows:           rows,
		Form:           c.form,
		EditingID:      c.editingID,
		ReceiptRef:     c.receiptRef,
		UploadProgress: c.uploadProgress,
		Summary:        expense.Summarize(expenses),
	}
}

func (c *Controller) reload(ctx context.Context) {
	if err := c.Load(ctx); err != nil {
		c.logger.Debug("reload after mutation failed", zap.Error(err))
	}
}

func (c *Controller) fail(prefix string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseIdle
	c.uploadProgress = 0
	c.banner = Banner{Kind: BannerError, Text: messages.Failure(prefix, apperr.Message(err))}
}

func (c *Controller) setUploadProgress(pct int) {
	c.mu.Lock()
	c.uploadProgress = pct
	c.mu.Unlock()
}

func (c *Controller) rowLocked(recordID string) *row {
	r, ok := c.rows[recordID]
	if !ok {
		r = &row{}
		c.rows[recordID] = r
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
	return r
}

// rowMessageLocked shows msg on a row until the TTL expires, unless a newer
// operation on the same row has started by then.
func (c *Controller) rowMessageLocked(recordID string, msg Banner) {
	r := c.rowLocked(recordID)
	r.status = RowStatus{State: RowMessage, Message: msg}
	gen := r.gen
	r.timer = c.clock.AfterFunc(c.rowTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.rows[recordID]; ok && cur.gen == gen {
			delete(c.rows, recordID)
		}
	})
}

func (c *Controller) resetFormLocked() {
	c.form = c.emptyForm()
	c.editingID = ""
	c.receiptRef = ""
	c.uploadProgress = 0
}

func (c *Controller) emptyForm() Form {
	return Form{Date: c.today()}
}

func (c *Controller) today() string {
	return c.clock.Now().Format(expense.DateLayout)
}
