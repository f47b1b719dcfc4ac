// Package messages holds the user-facing texts shown by the dashboard.
package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Messages are banner and row texts. Fields ending in "Failed" are prefixes
// followed by the underlying error message.
type Messages struct {
	ExpenseAdded     string `json:"expense_added"`
	ExpenseUpdated   string `json:"expense_updated"`
	ExpenseDeleted   string `json:"expense_deleted"`
	EditLoaded       string `json:"edit_loaded"`
	EditFailed       string `json:"edit_failed"`
	ReceiptUploaded  string `json:"receipt_uploaded"`
	FieldsRequired   string `json:"fields_required"`
	LoadFailed       string `json:"load_failed"`
	AddFailed        string `json:"add_failed"`
	UpdateFailed     string `json:"update_failed"`
	DeleteFailed     string `json:"delete_failed"`
	UploadFailed     string `json:"upload_failed"`
	FormUploadFailed string `json:"form_upload_failed"`
	ConfirmDelete    string `json:"confirm_delete"`
}

// Defaults returns the built-in English texts.
func Defaults() Messages {
	return Messages{
		ExpenseAdded:     "Expense added successfully",
		ExpenseUpdated:   "Expense updated successfully",
		ExpenseDeleted:   "Expense deleted successfully",
		EditLoaded:       "Expense loaded for editing",
		EditFailed:       "Failed to load expense details",
		ReceiptUploaded:  "Receipt uploaded successfully",
		FieldsRequired:   "Category and amount are required",
		LoadFailed:       "Failed to load expenses",
		AddFailed:        "Failed to add expense",
		UpdateFailed:     "Failed to update expense",
		DeleteFailed:     "Failed to delete expense",
		UploadFailed:     "Upload failed",
		FormUploadFailed: "Failed to upload receipt",
		ConfirmDelete:    "Are you sure you want to delete this expense?",
	}
}

// Failure joins a failure prefix and an error message the way banners show them.
func Failure(prefix, detail string) string {
	if detail == "" {
		return prefix
	}
	return prefix + ": " + detail
}

// Parse overlays a JSON document on the defaults. Keys that are missing or
// empty keep their default text.
func Parse(data []byte) (Messages, error) {
	var overrides Messages
	if err := json.Unmarshal(data, &overrides); err != nil {
		return Messages{}, fmt.Errorf("failed to parse messages file: %w", err)
	}

	m := Defaults()
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&m.ExpenseAdded, overrides.ExpenseAdded},
		{&m.ExpenseUpdated, overrides.ExpenseUpdated},
		{&m.ExpenseDeleted, overrides.ExpenseDeleted},
		{&m.EditLoaded, overrides.EditLoaded},
		{&m.EditFailed, overrides.EditFailed},
		{&m.ReceiptUploaded, overrides.ReceiptUploaded},
		{&m.FieldsRequired, overrides.FieldsRequired},
		{&m.LoadFailed, overrides.LoadFailed},
		{&m.AddFailed, overrides.AddFailed},
		{&m.UpdateFailed, overrides.UpdateFailed},
		{&m.DeleteFailed, overrides.DeleteFailed},
		{&m.UploadFailed, overrides.UploadFailed},
		{&m.FormUploadFailed, overrides.FormUploadFailed},
		{&m.ConfirmDelete, overrides.ConfirmDelete},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	return m, nil
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the messages file once and caches the result. An empty path
// yields the defaults. Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		if path == "" {
			loaded = Defaults()
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		loaded, loadErr = Parse(data)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}
