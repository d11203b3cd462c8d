package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pagewise/internal/pkg/apperr"
)

const defaultAPIVersion = "2023-10-01"

type Config struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Word struct {
	Text            string  `json:"text"`
	BoundingPolygon []Point `json:"boundingPolygon"`
	Confidence      float64 `json:"confidence"`
}

type Line struct {
	Text            string  `json:"text"`
	BoundingPolygon []Point `json:"boundingPolygon"`
	Words           []Word  `json:"words"`
}

type Block struct {
	Lines []Line `json:"lines"`
}

type ReadResult struct {
	Blocks []Block `json:"blocks"`
}

type Metadata struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AnalyzeResult is the body of a successful Image Analysis call with the
// read feature.
type AnalyzeResult struct {
	ModelVersion string      `json:"modelVersion"`
	Metadata     Metadata    `json:"metadata"`
	ReadResult   *ReadResult `json:"readResult"`
}

// Text joins recognized lines in reading order, one per line.
func (r *AnalyzeResult) Text() string {
	var sb strings.Builder
	for _, block := range r.ReadResult.Blocks {
		for _, line := range block.Lines {
			sb.WriteString(line.Text)
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// AzureClient calls the Azure AI Vision Image Analysis read endpoint.
type AzureClient struct {
	cfg        Config
	httpClient *http.Client
}

func NewAzureClient(cfg Config) *AzureClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &AzureClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Analyze runs read OCR over the image at imageURL.
// Error envelopes come back as extraction_failed, shape mismatches as
// deserialization_error.
func (c *AzureClient) Analyze(ctx context.Context, imageURL string) (*AnalyzeResult, error) {
	bodyBytes, err := json.Marshal(map[string]string{"uri": imageURL})
	if err != nil {
		return nil, fmt.Errorf("marshal ocr request failed: %w", err)
	}

	url := fmt.Sprintf("%s/computervision/imageanalysis:analyze?features=read&api-version=%s",
		c.cfg.Endpoint, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build ocr request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Extraction("ocr request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Extraction("read ocr response failed", err)
	}
	return parseAnalyzeResponse(resp.StatusCode, raw)
}

func parseAnalyzeResponse(status int, raw []byte) (*AnalyzeResult, error) {
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		return nil, apperr.Extraction(
			fmt.Sprintf("ocr service error %s", envelope.Error.Code),
			fmt.Errorf("%s", envelope.Error.Message),
		)
	}
	if status >= 300 {
		return nil, apperr.Extraction(fmt.Sprintf("ocr response status %d", status), nil)
	}

	var result AnalyzeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperr.Deserialization("decode ocr response", err)
	}
	if result.ReadResult == nil {
		return nil, apperr.Deserialization("ocr response has no readResult", nil)
	}
	return &result, nil
}
