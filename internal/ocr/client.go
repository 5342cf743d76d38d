// Package ocr wraps the text-recognition capability service. The service
// receives an image and answers with whatever text it could read; this is a
// soft signal, so transport failures degrade to an empty result instead of
// failing the request.
package ocr

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/antoinelm/listful/internal/provider"
)

const defaultModelTag = "ocr-rest-v1"

type ClientOpts struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// Client calls the OCR REST service.
type Client struct {
	httpClient *resty.Client
}

func NewClient(opts ClientOpts) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 12 * time.Second
	}
	retries := opts.Retries
	if retries == 0 {
		retries = 2
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Transient failures only. A 4xx answer is final.
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+opts.APIKey)
	}

	return &Client{httpClient: httpClient}
}

type extractRequest struct {
	Image string `json:"image"` // base64-encoded
}

type extractResponse struct {
	FullText string `json:"full_text"`
	Model    string `json:"model"`
}

// ExtractText implements provider.OCRClient. It never returns an error for
// provider failures; the caller treats an empty result as "no text found".
func (c *Client) ExtractText(ctx context.Context, image []byte) (provider.OCRResult, error) {
	empty := provider.OCRResult{Model: defaultModelTag}

	result := &extractResponse{}
	res, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(extractRequest{Image: base64.StdEncoding.EncodeToString(image)}).
		SetResult(result).
		Post("/v1/extract")
	if err != nil {
		log.Warn().Err(err).Msg("ocr request failed, continuing without text")
		return empty, nil
	}
	if res.IsError() {
		log.Warn().Int("status", res.StatusCode()).Msg("ocr request rejected, continuing without text")
		return empty, nil
	}

	text := strings.TrimSpace(result.FullText)
	model := result.Model
	if model == "" {
		model = defaultModelTag
	}

	return provider.OCRResult{
		FullText: text,
		HasText:  text != "",
		Model:    model,
	}, nil
}
