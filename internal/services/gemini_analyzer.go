package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/metrics"
	"github.com/codyseavey/tcg-market-report/internal/models"
)

const (
	defaultGeminiModel  = "gemini-2.0-flash"
	defaultGeminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
	geminiTimeout       = 60 * time.Second
)

// GeminiAnalyzer identifies a card photo with the Gemini vision API
type GeminiAnalyzer struct {
	apiKey     string
	model      string
	apiURL     string // format string taking the model name
	httpClient *http.Client
}

// NewGeminiAnalyzer creates an analyzer. apiURL may be empty for the public endpoint.
func NewGeminiAnalyzer(apiKey, model, apiURL string) *GeminiAnalyzer {
	if model == "" {
		model = defaultGeminiModel
	}
	if apiURL == "" {
		apiURL = defaultGeminiAPIURL
	}
	a := &GeminiAnalyzer{
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: geminiTimeout},
	}
	if a.IsEnabled() {
		log.Printf("Gemini analyzer: enabled (model=%s)", model)
	} else {
		log.Printf("Gemini analyzer: disabled (no GOOGLE_API_KEY)")
	}
	return a
}

// IsEnabled returns whether an API key is configured
func (a *GeminiAnalyzer) IsEnabled() bool {
	return a.apiKey != ""
}

// detectMimeType returns the MIME type for image bytes, defaulting to jpeg
func detectMimeType(data []byte) string {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "image/jpeg"
	}
	return contentType
}

// Analyze extracts a card identity from a photo
func (a *GeminiAnalyzer) Analyze(ctx context.Context, image []byte, lang string) (models.CardIdentity, error) {
	if !a.IsEnabled() {
		return models.CardIdentity{}, fmt.Errorf("gemini analyzer is not configured")
	}
	if len(image) == 0 {
		return models.CardIdentity{}, fmt.Errorf("empty image")
	}

	req := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: analyzerPrompt(NormalizeReportLang(lang))},
				{InlineData: &geminiInlineData{MimeType: detectMimeType(image), Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
		GenerationConfig: geminiGenConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.1,
			MaxOutputTokens:  2048,
		},
	}

	text, err := a.generate(ctx, req)
	if err != nil {
		return models.CardIdentity{}, err
	}
	card, err := parseAnalyzerResult(text)
	if err != nil {
		metrics.AnalyzerErrorsTotal.WithLabelValues("parse").Inc()
		return models.CardIdentity{}, err
	}
	log.Printf("Gemini analyzer: identified %s #%s (%s)", card.Name, card.Number, card.Grade)
	return card, nil
}

func (a *GeminiAnalyzer) generate(ctx context.Context, req geminiRequest) (string, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf(a.apiURL, a.model) + "?key=" + a.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		metrics.AnalyzerErrorsTotal.WithLabelValues("network").Inc()
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.AnalyzerErrorsTotal.WithLabelValues("read").Inc()
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.AnalyzerErrorsTotal.WithLabelValues("api").Inc()
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		metrics.AnalyzerErrorsTotal.WithLabelValues("parse").Inc()
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}
	if apiResp.Error != nil {
		metrics.AnalyzerErrorsTotal.WithLabelValues("api").Inc()
		return "", fmt.Errorf("API error %d: %s", apiResp.Error.Code, apiResp.Error.Message)
	}

	var text strings.Builder
	if len(apiResp.Candidates) > 0 {
		for _, part := range apiResp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		metrics.AnalyzerErrorsTotal.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("no response from Gemini")
	}
	return text.String(), nil
}

// flexBool accepts true, "true" and "yes"
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.ToLower(strings.TrimSpace(string(data))), `"`)
	*b = s == "true" || s == "yes"
	return nil
}

type analyzerResult struct {
	models.CardIdentity
	Category string   `json:"category"`
	IsAltArt flexBool `json:"is_alt_art"`
}

func parseAnalyzerResult(text string) (models.CardIdentity, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	var result analyzerResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return models.CardIdentity{}, fmt.Errorf("failed to parse JSON: %w (text: %s)", err, text)
	}
	card := result.CardIdentity
	card.Category = models.NormalizeCategory(result.Category)
	card.IsVariant = bool(result.IsAltArt)
	if strings.TrimSpace(card.Name) == "" {
		return models.CardIdentity{}, fmt.Errorf("no card name in response")
	}
	return card.Normalized(), nil
}

func analyzerPrompt(lang string) string {
	descLang := "Traditional Chinese"
	if lang == "en" {
		descLang = "English"
	}
	return fmt.Sprintf(analyzerPromptTemplate, descLang)
}

const analyzerPromptTemplate = `Reply with raw JSON only, no markdown.
You are a trading card grading and valuation expert (Pokemon TCG and One Piece TCG).
Treat the card as authentic. Never put words like "Replica", "Custom" or "Fake" in name or set_code.

Return exactly these fields:
{
  "name": "English name of the character only, e.g. Venusaur ex, Lillie, Sanji. Version notes such as Leader Parallel, SP Foil, Manga or Flagship Prize go in features",
  "set_code": "Set code printed in a bottom corner, e.g. SV3, SM-P, S-P, SV-P, OP02, ST04. Empty if none. For 004/SM-P use SM-P. For One Piece codes like OP02-026 use OP02",
  "number": "Card number with leading zeros, e.g. 026. For One Piece OP02-026 use 026. For Pokemon promos printed as 004/SM-P output 004/SM-P unchanged",
  "grade": "PSA 10, BGS 9.5 etc. when slabbed, otherwise Ungraded",
  "jp_name": "Japanese name or empty",
  "c_name": "Chinese name or empty",
  "category": "Pokemon or One Piece",
  "release_info": "Release year and set, e.g. 2023 - 151",
  "illustrator": "Illustrator name, or Unknown",
  "market_heat": "High / Medium / Low followed by a short reason in %[1]s",
  "features": "Card features, one point per line separated by \\n, in %[1]s",
  "collection_value": "High / Medium / Low followed by a short comment in %[1]s",
  "competitive_freq": "High / Medium / Low followed by a short comment in %[1]s",
  "is_alt_art": "true only when the background is black-and-white manga panels or parallel art, otherwise false"
}`

// Gemini API types

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
