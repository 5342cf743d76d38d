package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/antoinelm/listful/internal/listing"
	"github.com/antoinelm/listful/internal/pipeline"
	"github.com/antoinelm/listful/internal/pricing"
	"github.com/antoinelm/listful/internal/provider"
)

const (
	maxImages       = 5
	maxImageBytes   = 8 << 20 // 8 MiB per image
	multipartMemory = 16 << 20
	imagesFieldName = "images"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Quota   any    `json:"quota,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError maps pipeline failures onto the wire error taxonomy.
func writeError(w http.ResponseWriter, err error) {
	var quotaErr *pipeline.QuotaExceededError
	if errors.As(err, &quotaErr) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:   "quota_exceeded",
			Message: "Daily generation quota exceeded",
			Quota:   quotaErr.Quota,
		})
		return
	}

	var valErr *pipeline.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: valErr.Code, Message: valErr.Message})
		return
	}

	var provErr *provider.Error
	if errors.As(err, &provErr) {
		log.Error().Err(err).Str("provider", provErr.Provider).Msg("provider call failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "provider_unavailable"})
		return
	}

	log.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "server_error"})
}

// collectImages saves the uploaded images into dir and returns their bytes.
// Rejects uploads over the size limit or outside the image type whitelist.
func collectImages(r *http.Request, dir string) ([][]byte, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, &pipeline.ValidationError{Code: "invalid_upload", Message: "expected multipart form data"}
	}

	files := r.MultipartForm.File[imagesFieldName]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > maxImages {
		return nil, &pipeline.ValidationError{
			Code:    "too_many_images",
			Message: fmt.Sprintf("at most %d images per scan", maxImages),
		}
	}

	var images [][]byte
	for i, fh := range files {
		if fh.Size > maxImageBytes {
			return nil, &pipeline.ValidationError{Code: "image_too_large", Message: "image exceeds 8 MiB"}
		}

		// Stream to disk first so the whole batch never has to live in
		// form memory at once, then read the spooled copy back.
		path := filepath.Join(dir, fmt.Sprintf("upload-%d", i))
		if err := spoolUpload(fh, path); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spooled upload: %w", err)
		}
		if !allowedImageTypes[http.DetectContentType(data)] {
			return nil, &pipeline.ValidationError{Code: "unsupported_image_type", Message: "only JPEG, PNG, and WebP are accepted"}
		}
		images = append(images, data)
	}
	return images, nil
}

func spoolUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to spool upload: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, io.LimitReader(src, maxImageBytes+1))
	if err != nil {
		return fmt.Errorf("failed to spool upload: %w", err)
	}
	if n > maxImageBytes {
		return &pipeline.ValidationError{Code: "image_too_large", Message: "image exceeds 8 MiB"}
	}
	return nil
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	dir, err := os.MkdirTemp("", "listful-scan-*")
	if err != nil {
		writeError(w, fmt.Errorf("failed to create scan dir: %w", err))
		return
	}
	// Uploads never outlive the request, including on provider failure.
	defer os.RemoveAll(dir)

	images, err := collectImages(r, dir)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.svc.Scan(r.Context(), userID, images)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		*pipeline.ScanResult
	}{true, result})
}

type describeBody struct {
	Title     string               `json:"title"`
	Condition string               `json:"condition"`
	Platform  string               `json:"platform"`
	Lang      string               `json:"lang"`
	Currency  string               `json:"currency"`
	Color     string               `json:"color"`
	PriceHint *float64             `json:"priceHint"`
	Specs     pricing.RefinedSpecs `json:"specs"`
	Hints     describeHints        `json:"hints"`
	Options   describeOptions      `json:"options"`
	Template  bool                 `json:"template"`
	RawScan   *pipeline.ScanResult `json:"rawScan"`
}

type describeHints struct {
	Label      string   `json:"label"`
	OCRText    string   `json:"ocrFullText"`
	LensTitles []string `json:"lensTitles"`
}

func (h describeHints) toHints() listing.Hints {
	return listing.Hints{Label: h.Label, OCRText: h.OCRText, LensTitles: h.LensTitles}
}

type describeOptions struct {
	Meetup    bool `json:"meetup"`
	Recent    bool `json:"recent"`
	NeverWorn bool `json:"never_worn"`
}

func (o describeOptions) toOptions() listing.Options {
	return listing.Options{Meetup: o.Meetup, Recent: o.Recent, NeverWorn: o.NeverWorn}
}

func decodeDescribeBody(r *http.Request) (describeBody, error) {
	var body describeBody
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		return body, &pipeline.ValidationError{Code: "invalid_json", Message: "request body must be valid JSON"}
	}
	return body, nil
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	body, err := decodeDescribeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.svc.Describe(r.Context(), userID, pipeline.DescribeRequest{
		Title:     body.Title,
		Condition: body.Condition,
		Platform:  body.Platform,
		Lang:      body.Lang,
		Currency:  body.Currency,
		Color:     body.Color,
		PriceHint: body.PriceHint,
		Specs:     body.Specs,
		Hints:     body.Hints.toHints(),
		Options:   body.Options.toOptions(),
		Template:  body.Template,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		*pipeline.DescribeResult
	}{true, result})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	body, err := decodeDescribeBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.svc.Listing(r.Context(), userID, pipeline.ListingRequest{
		Title:     body.Title,
		Condition: body.Condition,
		Platform:  body.Platform,
		Lang:      body.Lang,
		Currency:  body.Currency,
		Color:     body.Color,
		PriceHint: body.PriceHint,
		Specs:     body.Specs,
		Hints:     body.Hints.toHints(),
		Options:   body.Options.toOptions(),
		Template:  body.Template,
		RawScan:   body.RawScan,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		*pipeline.ListingResult
	}{true, result})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	entries, err := s.svc.History(userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK      bool `json:"ok"`
		History any  `json:"history"`
	}{true, entries})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
	}{true})
}
