package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/client"
	"fintrack/internal/domain/expense"
	"fintrack/internal/domain/receipt"
	"fintrack/internal/shared/apperr"
)

type MockAPI struct {
	ListExpensesFunc  func(ctx context.Context, ownerID string) ([]*expense.Expense, error)
	CreateExpenseFunc func(ctx context.Context, in client.ExpenseInput) (*expense.Expense, error)
	UpdateExpenseFunc func(ctx context.Context, ownerID, recordID string, in client.UpdateInput) (*expense.Expense, error)
	DeleteExpenseFunc func(ctx context.Context, ownerID, recordID string) (*expense.Expense, error)
	UploadReceiptFunc func(ctx context.Context, ownerID string, f client.File, progress func(int)) (*receipt.Upload, error)

	mu        sync.Mutex
	listCalls int
}

func (m *MockAPI) ListExpenses(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.ListExpensesFunc != nil {
		return m.ListExpensesFunc(ctx, ownerID)
	}
	return []*expense.Expense{}, nil
}

func (m *MockAPI) CreateExpense(ctx context.Context, in client.ExpenseInput) (*expense.Expense, error) {
	if m.CreateExpenseFunc != nil {
		return m.CreateExpenseFunc(ctx, in)
	}
	return &expense.Expense{RecordID: "new"}, nil
}

func (m *MockAPI) UpdateExpense(ctx context.Context, ownerID, recordID string, in client.UpdateInput) (*expense.Expense, error) {
	if m.UpdateExpenseFunc != nil {
		return m.UpdateExpenseFunc(ctx, ownerID, recordID, in)
	}
	return &expense.Expense{RecordID: recordID}, nil
}

func (m *MockAPI) DeleteExpense(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	if m.DeleteExpenseFunc != nil {
		return m.DeleteExpenseFunc(ctx, ownerID, recordID)
	}
	return &expense.Expense{RecordID: recordID}, nil
}

func (m *MockAPI) UploadReceipt(ctx context.Context, ownerID string, f client.File, progress func(int)) (*receipt.Upload, error) {
	if m.UploadReceiptFunc != nil {
		return m.UploadReceiptFunc(ctx, ownerID, f, progress)
	}
	return &receipt.Upload{Ref: "https://r/" + f.Name}, nil
}

func (m *MockAPI) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

type manualTimer struct {
	at      time.Time
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualClock fires timers only when Advance is called.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	pending := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(c.now):
			t.stopped = true
			due = append(due, t.f)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

func ref(s string) *string { return &s }

func sampleExpenses() []*expense.Expense {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return []*expense.Expense{
		{OwnerID: "u1", RecordID: "e1", Category: "Food", Amount: decimal.RequireFromString("10"), Date: "2024-03-01", CreatedAt: base},
		{OwnerID: "u1", RecordID: "e2", Category: "Travel", Amount: decimal.RequireFromString("20.25"), Date: "2024-03-05", CreatedAt: base, ReceiptRef: ref("https://r/old.png")},
		{OwnerID: "u1", RecordID: "e3", Category: "Books", Amount: decimal.RequireFromString("5"), Date: "2024-03-01", CreatedAt: base.Add(time.Hour)},
	}
}

func newTestController(api *MockAPI, confirm bool) (*Controller, *manualClock) {
	clock := newManualClock()
	c := NewController(api, Options{
		Clock:     clock,
		Confirmer: ConfirmFunc(func(string) bool { return confirm }),
	})
	return c, clock
}

func TestController_SetOwner(t *testing.T) {
	tests := []struct {
		name      string
		owner     string
		wantOwner string
		wantLists int
	}{
		{name: "empty becomes guest", owner: "  ", wantOwner: "guest", wantLists: 0},
		{name: "guest does not load", owner: "guest", wantOwner: "guest", wantLists: 0},
		{name: "real owner loads", owner: " u1@example.com ", wantOwner: "u1@example.com", wantLists: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &MockAPI{}
			c, _ := newTestController(api, true)

			if err := c.SetOwner(context.Background(), tt.owner); err != nil {
				t.Fatalf("SetOwner() error = %v", err)
			}
			if got := c.Snapshot().OwnerID; got != tt.wantOwner {
				t.Errorf("OwnerID = %q, want %q", got, tt.wantOwner)
			}
			if api.ListCalls() != tt.wantLists {
				t.Errorf("List calls = %d, want %d", api.ListCalls(), tt.wantLists)
			}
		})
	}
}

func TestController_LoadOrdersAndSummarizes(t *testing.T) {
	api := &MockAPI{ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
		return sampleExpenses(), nil
	}}
	c, _ := newTestController(api, true)

	if err := c.SetOwner(context.Background(), "u1"); err != nil {
		t.Fatalf("SetOwner() error = %v", err)
	}

	snap := c.Snapshot()
	var ids []string
	for _, e := range snap.Expenses {
		ids = append(ids, e.RecordID)
	}
	if got := strings.Join(ids, ","); got != "e2,e3,e1" {
		t.Errorf("order = %s, want e2,e3,e1", got)
	}
	if expense.FormatAmount(snap.Summary.Total) != "35.25" || snap.Summary.Count != 3 || snap.Summary.WithReceipts != 1 {
		t.Errorf("Summary = %+v", snap.Summary)
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("Phase = %v, want idle", snap.Phase)
	}
}

func TestController_LoadFailureClearsCache(t *testing.T) {
	fail := false
	api := &MockAPI{ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
		if fail {
			return nil, apperr.Dependency("failed to query expenses", nil)
		}
		return sampleExpenses(), nil
	}}
	c, _ := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")

	fail = true
	if err := c.Load(context.Background()); err == nil {
		t.Fatal("Load() should fail")
	}

	snap := c.Snapshot()
	if len(snap.Expenses) != 0 {
		t.Errorf("Expenses = %d, want cleared", len(snap.Expenses))
	}
	if snap.Banner != (Banner{Kind: BannerError, Text: "Failed to load expenses"}) {
		t.Errorf("Banner = %+v", snap.Banner)
	}
}

func TestController_SubmitValidatesLocally(t *testing.T) {
	api := &MockAPI{CreateExpenseFunc: func(ctx context.Context, in client.ExpenseInput) (*expense.Expense, error) {
		t.Error("CreateExpense should not be called")
		return nil, nil
	}}
	c, _ := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")
	c.SetForm(Form{Category: "Food"})

	err := c.Submit(context.Background())
	if !apperr.IsValidation(err) {
		t.Fatalf("Submit() error = %v, want validation", err)
	}
	if b := c.Snapshot().Banner; b.Kind != BannerError || b.Text != "Category and amount are required" {
		t.Errorf("Banner = %+v", b)
	}
}

func TestController_SubmitCreate(t *testing.T) {
	var created client.ExpenseInput
	api := &MockAPI{CreateExpenseFunc: func(ctx context.Context, in client.ExpenseInput) (*expense.Expense, error) {
		created = in
		return &expense.Expense{RecordID: "new"}, nil
	}}
	c, _ := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")
	lists := api.ListCalls()

	c.SetForm(Form{Category: "Food", Amount: "12.5", Date: "2024-03-02", File: &client.File{Name: "r.png", Body: strings.NewReader("png")}})
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if created.OwnerID != "u1" || created.Amount != "12.5" || created.ReceiptRef == nil || *created.ReceiptRef != "https://r/r.png" {
		t.Errorf("CreateExpense input = %+v", created)
	}
	if api.ListCalls() != lists+1 {
		t.Error("Submit should reload the list")
	}

	snap := c.Snapshot()
	if snap.Banner.Text != "Expense added successfully" {
		t.Errorf("Banner = %+v", snap.Banner)
	}
	if snap.Form != (Form{Date: "2024-03-10"}) || snap.Editing() {
		t.Errorf("form not reset: %+v editing=%v", snap.Form, snap.Editing())
	}
}

func TestController_SubmitStopsWhenUploadFails(t *testing.T) {
	api := &MockAPI{
		UploadReceiptFunc: func(ctx context.Context, ownerID string, f client.File, progress func(int)) (*receipt.Upload, error) {
			return nil, &client.APIError{StatusCode: 400, Message: "receipt file exceeds 10 bytes"}
		},
		CreateExpenseFunc: func(ctx context.Context, in client.ExpenseInput) (*expense.Expense, error) {
			t.Error("CreateExpense should not be called after a failed upload")
			return nil, nil
		},
	}
	c, _ := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")
	form := Form{Category: "Food", Amount: "3", File: &client.File{Name: "big.png", Body: strings.NewReader("x")}}
	c.SetForm(form)

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("Submit() should fail")
	}
	snap := c.Snapshot()
	if snap.Banner.Text != "Failed to upload receipt: receipt file exceeds 10 bytes" {
		t.Errorf("Banner = %q", snap.Banner.Text)
	}
	if snap.Form.Category != "Food" || snap.Phase != PhaseIdle {
		t.Errorf("form should be kept: %+v phase=%v", snap.Form, snap.Phase)
	}
}

func TestController_EditAndUpdateKeepsReceipt(t *testing.T) {
	var updated client.UpdateInput
	api := &MockAPI{
		ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
			return sampleExpenses(), nil
		},
		UpdateExpenseFunc: func(ctx context.Context, ownerID, recordID string, in client.UpdateInput) (*expense.Expense, error) {
			if recordID != "e2" {
				t.Errorf("recordID = %q", recordID)
			}
			updated = in
			return &expense.Expense{RecordID: recordID}, nil
		},
	}
	c, _ := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")

	if err := c.Edit("e2"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	snap := c.Snapshot()
	if snap.Form.Amount != "20.25" || snap.ReceiptRef != "https://r/old.png" || snap.Banner.Text != "Expense loaded for editing" {
		t.Errorf("edit state = %+v", snap)
	}

	form := snap.Form
	form.Category = "Flights"
	c.SetForm(form)
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if updated.Category.Value != "Flights" || !updated.ReceiptRef.Set || updated.ReceiptRef.Value != "https://r/old.png" {
		t.Errorf("UpdateExpense input = %+v", updated)
	}
	if c.Snapshot().Banner.Text != "Expense updated successfully" {
		t.Errorf("Banner = %+v", c.Snapshot().Banner)
	}
}

func TestController_EditUnknownAndCancel(t *testing.T) {
	api := &MockAPI{ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
		return sampleExpenses(), nil
	}}
	c, _ := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")

	if err := c.Edit("missing"); !apperr.IsNotFound(err) {
		t.Errorf("Edit(missing) error = %v, want not found", err)
	}

	c.Edit("e1")
	c.CancelEdit()
	snap := c.Snapshot()
	if snap.Editing() || !snap.Banner.IsZero() || snap.Form.Category != "" {
		t.Errorf("after CancelEdit: %+v", snap)
	}
}

func TestController_Delete(t *testing.T) {
	tests := []struct {
		name       string
		confirm    bool
		deleteErr  error
		wantErr    error
		wantBanner Banner
		wantReload bool
	}{
		{
			name:       "confirmed",
			confirm:    true,
			wantBanner: Banner{Kind: BannerSuccess, Text: "Expense deleted successfully"},
			wantReload: true,
		},
		{
			name:    "declined",
			confirm: false,
			wantErr: ErrCancelled,
		},
		{
			name:       "server failure keeps cache",
			confirm:    true,
			deleteErr:  &client.APIError{StatusCode: 404, Message: "expense not found"},
			wantBanner: Banner{Kind: BannerError, Text: "Failed to delete expense: expense not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deleted := false
			api := &MockAPI{
				ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
					return sampleExpenses(), nil
				},
				DeleteExpenseFunc: func(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
					deleted = true
					if tt.deleteErr != nil {
						return nil, tt.deleteErr
					}
					return &expense.Expense{RecordID: recordID}, nil
				},
			}
			c, _ := newTestController(api, tt.confirm)
			c.SetOwner(context.Background(), "u1")
			lists := api.ListCalls()

			err := c.Delete(context.Background(), "e1")
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Delete() error = %v, want %v", err, tt.wantErr)
			}
			if !tt.confirm && deleted {
				t.Error("DeleteExpense called without confirmation")
			}

			snap := c.Snapshot()
			if snap.Banner != tt.wantBanner {
				t.Errorf("Banner = %+v, want %+v", snap.Banner, tt.wantBanner)
			}
			if (api.ListCalls() > lists) != tt.wantReload {
				t.Errorf("reloaded = %v, want %v", api.ListCalls() > lists, tt.wantReload)
			}
			if len(snap.Expenses) != 3 {
				t.Errorf("Expenses = %d, want 3", len(snap.Expenses))
			}
		})
	}
}

func TestController_AttachReceiptsAreIndependent(t *testing.T) {
	release := make(chan struct{})
	api := &MockAPI{
		ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
			return sampleExpenses(), nil
		},
		UploadReceiptFunc: func(ctx context.Context, ownerID string, f client.File, progress func(int)) (*receipt.Upload, error) {
			progress(50)
			<-release
			if f.Name == "e1.png" {
				return nil, &client.APIError{StatusCode: 500, Message: "failed to store receipt"}
			}
			progress(100)
			return &receipt.Upload{Ref: "https://r/" + f.Name}, nil
		},
		UpdateExpenseFunc: func(ctx context.Context, ownerID, recordID string, in client.UpdateInput) (*expense.Expense, error) {
			if in.Category.Set || in.Amount.Set || in.Date.Set {
				t.Errorf("row attach sent more than receiptRef: %+v", in)
			}
			return &expense.Expense{RecordID: recordID}, nil
		},
	}
	c, clock := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")

	done := make(chan error, 1)
	go func() {
		done <- c.AttachReceipts(context.Background(), map[string]client.File{
			"e1": {Name: "e1.png", Body: strings.NewReader("1")},
			"e2": {Name: "e2.png", Body: strings.NewReader("2")},
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := c.Snapshot()
		if snap.Row("e1").Progress == 50 && snap.Row("e2").Progress == 50 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rows never reported progress: %+v", snap.Rows)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	if err := <-done; err == nil {
		t.Error("AttachReceipts() should report the e1 failure")
	}

	snap := c.Snapshot()
	if got := snap.Row("e1"); got.State != RowMessage || got.Message != (Banner{Kind: BannerError, Text: "Upload failed: failed to store receipt"}) {
		t.Errorf("e1 row = %+v", got)
	}
	if got := snap.Row("e2"); got.State != RowMessage || got.Message != (Banner{Kind: BannerSuccess, Text: "Receipt uploaded successfully"}) {
		t.Errorf("e2 row = %+v", got)
	}
	for _, e := range snap.Expenses {
		switch e.RecordID {
		case "e1":
			if e.ReceiptRef != nil {
				t.Errorf("e1 receiptRef = %v, want untouched", *e.ReceiptRef)
			}
		case "e2":
			if e.ReceiptRef == nil || *e.ReceiptRef != "https://r/e2.png" {
				t.Errorf("e2 receiptRef = %v", e.ReceiptRef)
			}
		}
	}
	if !snap.Banner.IsZero() {
		t.Errorf("row uploads should not touch the banner: %+v", snap.Banner)
	}

	clock.Advance(DefaultRowMessageTTL - time.Millisecond)
	if c.Snapshot().Row("e1").State != RowMessage {
		t.Error("row message cleared too early")
	}
	clock.Advance(time.Millisecond)
	if rows := c.Snapshot().Rows; len(rows) != 0 {
		t.Errorf("rows after TTL = %+v, want idle", rows)
	}
}

func TestController_NewUploadKeepsRowMessageTimerFromClearingIt(t *testing.T) {
	block := make(chan struct{})
	first := true
	api := &MockAPI{
		UploadReceiptFunc: func(ctx context.Context, ownerID string, f client.File, progress func(int)) (*receipt.Upload, error) {
			if first {
				first = false
				return &receipt.Upload{Ref: "https://r/a.png"}, nil
			}
			<-block
			return &receipt.Upload{Ref: "https://r/b.png"}, nil
		},
	}
	c, clock := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")

	if err := c.AttachReceipt(context.Background(), "e1", client.File{Name: "a.png", Body: strings.NewReader("a")}); err != nil {
		t.Fatalf("AttachReceipt() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.AttachReceipt(context.Background(), "e1", client.File{Name: "b.png", Body: strings.NewReader("b")})
	}()
	for c.Snapshot().Row("e1").State != RowUploading {
		time.Sleep(time.Millisecond)
	}

	clock.Advance(DefaultRowMessageTTL)
	if got := c.Snapshot().Row("e1").State; got != RowUploading {
		t.Errorf("row state = %v, want uploading", got)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("second AttachReceipt() error = %v", err)
	}
}

func TestController_OlderAttachDoesNotOverwriteNewerOnSameRow(t *testing.T) {
	startedA, releaseA := make(chan struct{}), make(chan struct{})
	startedB, releaseB := make(chan struct{}), make(chan struct{})
	reportB := make(chan struct{})
	reportedB := make(chan struct{})

	var mu sync.Mutex
	var refs []string
	api := &MockAPI{
		ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
			return sampleExpenses(), nil
		},
		UploadReceiptFunc: func(ctx context.Context, ownerID string, f client.File, progress func(int)) (*receipt.Upload, error) {
			if f.Name == "a.png" {
				close(startedA)
				<-releaseA
				return &receipt.Upload{Ref: "https://r/a.png"}, nil
			}
			close(startedB)
			<-reportB
			progress(40)
			close(reportedB)
			<-releaseB
			return &receipt.Upload{Ref: "https://r/b.png"}, nil
		},
		UpdateExpenseFunc: func(ctx context.Context, ownerID, recordID string, in client.UpdateInput) (*expense.Expense, error) {
			mu.Lock()
			refs = append(refs, in.ReceiptRef.Value)
			mu.Unlock()
			return &expense.Expense{RecordID: recordID}, nil
		},
	}
	c, _ := newTestController(api, true)
	c.SetOwner(context.Background(), "u1")

	doneA := make(chan error, 1)
	go func() {
		doneA <- c.AttachReceipt(context.Background(), "e1", client.File{Name: "a.png", Body: strings.NewReader("a")})
	}()
	<-startedA

	doneB := make(chan error, 1)
	go func() {
		doneB <- c.AttachReceipt(context.Background(), "e1", client.File{Name: "b.png", Body: strings.NewReader("b")})
	}()
	<-startedB

	close(releaseA)
	if err := <-doneA; err != nil {
		t.Fatalf("first AttachReceipt() error = %v", err)
	}

	snap := c.Snapshot()
	if got := snap.Row("e1"); got.State != RowUploading || !got.Message.IsZero() {
		t.Errorf("row after older attach finished = %+v, want still uploading", got)
	}
	for _, e := range snap.Expenses {
		if e.RecordID == "e1" && e.ReceiptRef != nil {
			t.Errorf("e1 receiptRef = %q, superseded attach must not refresh the cache", *e.ReceiptRef)
		}
	}

	close(reportB)
	<-reportedB
	if got := c.Snapshot().Row("e1").Progress; got != 40 {
		t.Errorf("progress of newer attach = %d, want 40", got)
	}

	close(releaseB)
	if err := <-doneB; err != nil {
		t.Fatalf("second AttachReceipt() error = %v", err)
	}
	snap = c.Snapshot()
	if got := snap.Row("e1"); got.State != RowMessage || got.Message.Kind != BannerSuccess {
		t.Errorf("row after newer attach = %+v", got)
	}
	for _, e := range snap.Expenses {
		if e.RecordID == "e1" && (e.ReceiptRef == nil || *e.ReceiptRef != "https://r/b.png") {
			t.Errorf("e1 receiptRef = %v, want the newer upload", e.ReceiptRef)
		}
	}
	if len(refs) != 2 {
		t.Errorf("server updates = %v, want both attaches sent", refs)
	}
}

func TestController_LoadDiscardsPreviousOwnersList(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	api := &MockAPI{
		ListExpensesFunc: func(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
			if ownerID == "u1" {
				close(started)
				<-release
				return []*expense.Expense{{RecordID: "old", OwnerID: "u1", Category: "Rent", Date: "2024-03-01"}}, nil
			}
			return sampleExpenses(), nil
		},
	}
	c, _ := newTestController(api, true)

	done := make(chan error, 1)
	go func() { done <- c.SetOwner(context.Background(), "u1") }()
	<-started

	if err := c.SetOwner(context.Background(), "u2"); err != nil {
		t.Fatalf("SetOwner(u2) error = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("SetOwner(u1) error = %v", err)
	}

	snap := c.Snapshot()
	if snap.OwnerID != "u2" || snap.Phase != PhaseIdle {
		t.Errorf("snapshot owner/phase = %s/%v", snap.OwnerID, snap.Phase)
	}
	if len(snap.Expenses) != 3 {
		t.Fatalf("expenses = %d, want u2's 3", len(snap.Expenses))
	}
	for _, e := range snap.Expenses {
		if e.RecordID == "old" {
			t.Error("u1's expense leaked into u2's list")
		}
	}
}
