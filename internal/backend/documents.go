package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/teemow/healthcal/internal/instrumentation"
)

// MaxUploadBytes caps the size of a document sent for OCR.
const MaxUploadBytes = 32 << 20

var errNotPDF = errors.New("only PDF files are allowed")

// UploadDocument sends a PDF for OCR and returns the extracted document.
// The backend keeps its own copy; medication extraction reads from it.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (*OCRResult, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, errNotPDF
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if n == 0 {
		return nil, errors.New("document is empty")
	}
	if n > MaxUploadBytes {
		return nil, fmt.Errorf("document is larger than %d bytes", MaxUploadBytes)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	var out OCRResult
	if err := c.send(ctx, instrumentation.OperationUpload, http.MethodPost, "/api/upload/upload-pdf",
		mw.FormDataContentType(), &buf, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthInsights asks the backend to summarize an OCR document. Titles and
// descriptions are stripped of markup.
func (c *Client) HealthInsights(ctx context.Context, document json.RawMessage) (*InsightsResult, error) {
	return c.generate(ctx, "/api/health-insights/get-health-insights", document)
}

// HealthRecommendations asks the backend for recommendations on an OCR
// document.
func (c *Client) HealthRecommendations(ctx context.Context, document json.RawMessage) (*InsightsResult, error) {
	return c.generate(ctx, "/api/health-insights/get-health-recommendations", document)
}

func (c *Client) generate(ctx context.Context, path string, document json.RawMessage) (*InsightsResult, error) {
	if len(bytes.TrimSpace(document)) == 0 || !json.Valid(document) {
		return nil, errors.New("document must be a JSON object")
	}
	var out InsightsResult
	if err := c.do(ctx, instrumentation.OperationGenerate, http.MethodPost, path, document, "", &out); err != nil {
		return nil, err
	}
	for i := range out.Data.Insights {
		out.Data.Insights[i].Title = c.sanitize(out.Data.Insights[i].Title)
		out.Data.Insights[i].Description = c.sanitize(out.Data.Insights[i].Description)
	}
	for i := range out.Data.Recommendations {
		out.Data.Recommendations[i].Title = c.sanitize(out.Data.Recommendations[i].Title)
		out.Data.Recommendations[i].Description = c.sanitize(out.Data.Recommendations[i].Description)
	}
	return &out, nil
}
