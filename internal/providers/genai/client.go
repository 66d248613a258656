package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagestudio/internal/infra"
)

var (
	// ErrMissingAPIKey is returned before any network call when the client was
	// built without a credential.
	ErrMissingAPIKey = errors.New("genai: missing api key")
	// ErrNoImage marks a well-formed response that carried no inline image part.
	ErrNoImage = errors.New("genai: response contained no image data")
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	JudgeModel string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the Gemini generateContent REST API.
// It covers the two capabilities this service consumes: image generation from
// a reference photo, and schema-constrained JSON judgment over several photos.
type Client struct {
	apiKey     string
	baseURL    string
	imageModel string
	judgeModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// InlineImage is a binary image payload with its declared mime type.
type InlineImage struct {
	MimeType string
	Data     []byte
}

// ImageRequest describes one image-generation call.
type ImageRequest struct {
	Instruction string
	Reference   InlineImage
	AspectRatio string
	RequestID   string
}

// JSONRequest describes one structured-judgment call.
type JSONRequest struct {
	Instruction string
	Images      []InlineImage
	Schema      *Schema
	RequestID   string
}

// Schema mirrors the subset of the Gemini responseSchema grammar we use.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int                `json:"candidateCount,omitempty"`
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
	ResponseMimeType   string             `json:"responseMimeType,omitempty"`
	ResponseSchema     *Schema            `json:"responseSchema,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with a request timeout will be created.
func NewClient(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image-preview"
	}
	judgeModel := strings.TrimSpace(opts.JudgeModel)
	if judgeModel == "" {
		judgeModel = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageModel: imageModel,
		judgeModel: judgeModel,
		httpClient: client,
		logger:     logger,
	}, nil
}

// ImageModel returns the configured image-generation model identifier.
func (c *Client) ImageModel() string {
	return c.imageModel
}

// JudgeModel returns the configured judgment model identifier.
func (c *Client) JudgeModel() string {
	return c.judgeModel
}

// GenerateImage sends the instruction plus one inline reference image and
// returns the first inline image part of the response. A response without any
// image part yields ErrNoImage so callers can treat it like any other
// provider failure.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*InlineImage, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{Text: req.Instruction},
					{InlineData: &geminiInlineData{
						MimeType: req.Reference.MimeType,
						Data:     base64.StdEncoding.EncodeToString(req.Reference.Data),
					}},
				},
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        imageConfigFor(req.AspectRatio),
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, c.imageModel, payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.imageModel).
				Int("bytes", len(data)).
				Msg("genai: received image part")
			return &InlineImage{MimeType: mime, Data: data}, nil
		}
	}

	return nil, ErrNoImage
}

// GenerateJSON sends the instruction plus the inline images with a declared
// response schema and returns the raw JSON text of the first candidate part.
// An empty text part comes back as an empty slice, not an error; the caller
// decides how lenient to be.
func (c *Client) GenerateJSON(ctx context.Context, req JSONRequest) ([]byte, error) {
	parts := make([]geminiPart, 0, len(req.Images)+1)
	parts = append(parts, geminiPart{Text: req.Instruction})
	for _, img := range req.Images {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: img.MimeType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, c.judgeModel, payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return []byte(text), nil
			}
		}
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.judgeModel).
		Msg("genai: judgment response carried no text part")
	return nil, nil
}

func (c *Client) invoke(ctx context.Context, model string, payload any, out any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func imageConfigFor(aspect string) *geminiImageConfig {
	aspect = strings.TrimSpace(aspect)
	if aspect == "" {
		return nil
	}
	return &geminiImageConfig{AspectRatio: aspect}
}
