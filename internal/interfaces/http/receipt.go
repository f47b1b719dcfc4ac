package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fintrack/internal/domain/receipt"
	"fintrack/internal/shared/apperr"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the receipt itself.
const multipartOverhead = 1 << 20

type ReceiptHandler struct {
	receiptService *receipt.Service
	responder
}

func NewReceiptHandler(receiptService *receipt.Service, logger *zap.Logger, exposeDetails bool) *ReceiptHandler {
	return &ReceiptHandler{
		receiptService: receiptService,
		responder:      responder{logger: logger, exposeDetails: exposeDetails},
	}
}

// UploadReceiptRequest is the JSON form of an upload, with the file base64 encoded.
type UploadReceiptRequest struct {
	OwnerID     string `json:"ownerId"`
	UserID      string `json:"userId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	FileContent string `json:"fileContent"`
}

type UploadReceiptResponse struct {
	Message string `json:"message"`
	receipt.Upload
}

// HandleUpload accepts either multipart/form-data with a "file" part or a JSON body.
func (h *ReceiptHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		params receipt.UploadParams
		err    error
	)
	if mediaType == "multipart/form-data" {
		params, err = h.multipartParams(w, r)
	} else {
		params, err = h.jsonParams(w, r)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if c, ok := params.Body.(io.Closer); ok {
		defer c.Close()
	}

	up, err := h.receiptService.Upload(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("receipt stored",
		zap.String("owner_id", params.OwnerID),
		zap.String("key", up.Key),
		zap.Int64("size", up.Size),
	)
	h.writeJSON(w, http.StatusOK, UploadReceiptResponse{Message: "Receipt uploaded", Upload: *up})
}

func (h *ReceiptHandler) multipartParams(w http.ResponseWriter, r *http.Request) (receipt.UploadParams, error) {
	maxBytes := h.receiptService.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return receipt.UploadParams{}, h.bodyError(err, maxBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return receipt.UploadParams{}, apperr.Validation("receipt file is required")
	}
	fileName := firstNonEmpty(r.FormValue("filename"), r.FormValue("fileName"), header.Filename)
	return receipt.UploadParams{
		OwnerID:     resolveOwner(r, r.FormValue("ownerId"), r.FormValue("userId")),
		FileName:    fileName,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, nil
}

func (h *ReceiptHandler) jsonParams(w http.ResponseWriter, r *http.Request) (receipt.UploadParams, error) {
	maxBytes := h.receiptService.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, int64(base64.StdEncoding.EncodedLen(int(maxBytes)))+multipartOverhead)

	var req UploadReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return receipt.UploadParams{}, h.bodyError(err, maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		return receipt.UploadParams{}, apperr.Validation("fileContent must be base64 encoded")
	}

	return receipt.UploadParams{
		OwnerID:     resolveOwner(r, req.OwnerID, req.UserID),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}, nil
}

func (h *ReceiptHandler) bodyError(err error, maxBytes int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validationf("receipt file exceeds %d bytes", maxBytes)
	}
	h.logger.Debug("invalid upload body", zap.Error(err))
	return apperr.Validation("Invalid request body")
}

// ObjectOpener reads back stored payloads.
type ObjectOpener interface {
	Open(key string) ([]byte, string, bool)
}

// HandleObject serves receipts kept by the in-process object store under
// /receipts/<key>. The key is taken from the escaped path so escaped owner
// segments match what was stored.
func HandleObject(store ObjectOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		key := strings.TrimPrefix(r.URL.EscapedPath(), "/receipts/")
		data, contentType, ok := store.Open(key)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}
}
