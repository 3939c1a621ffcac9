package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

// Extractor key vocabulary. Any key may be absent, signifying "not
// determined"; unknown keys in a response are ignored.
const (
	keyDay              = "dia"
	keyMonth            = "mes"
	keyYear             = "anio"
	keyHour             = "hora"
	keyMinute           = "minuto"
	keyLocation         = "lugar"
	keySurgeon          = "cirujano"
	keyAnesthesiologist = "anestesiologo"
	keyProcedure        = "cirugia"
	keyQuantity         = "cantidad"
)

var extractorVocabulary = []string{
	keyDay, keyMonth, keyYear, keyHour, keyMinute,
	keyLocation, keySurgeon, keyAnesthesiologist, keyProcedure, keyQuantity,
}

// ExtractionRequest is the payload sent to the entity extractor.
type ExtractionRequest struct {
	Text          string            `json:"text"`
	Mode          ExtractMode       `json:"mode"`
	ReferenceDate time.Time         `json:"reference_date"`
	Field         Field             `json:"field,omitempty"`
	Known         map[string]string `json:"known,omitempty"`
}

// EntityExtractor turns free text into slot values. Implementations must be
// treated as untrusted: the engine defends against malformed output.
type EntityExtractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (map[string]string, error)
}

// ErrExtractorFailed wraps any extractor problem (timeout, malformed
// output, backend error) so the engine can degrade uniformly.
var ErrExtractorFailed = errors.New("conversation: extractor failed")

const extractorSystemPrompt = `Sos un extractor de datos de cirugías programadas para un sistema de registro.
Recibís un mensaje en español rioplatense y devolvés SOLO un objeto JSON, sin texto adicional.

Claves permitidas (todas opcionales, omití las que no puedas determinar):
"dia", "mes", "anio", "hora", "minuto" (números),
"lugar", "cirujano", "anestesiologo", "cirugia" (texto),
"cantidad" (número, cuántas cirugías son).

Reglas:
- "mañana", "hoy", "pasado mañana" se resuelven contra la fecha de referencia del pedido.
- "14hs" significa hora 14, minuto 0.
- No inventes valores: si un dato no está en el mensaje, omití la clave.
- Para mode "normalize_field" devolvé únicamente la clave del campo pedido.
- Para mode "fill_missing" devolvé solo los datos nuevos del mensaje; los ya conocidos vienen en "known".`

// ExtractorConfig configures the LLM-backed extractor.
type ExtractorConfig struct {
	Model       string
	Timeout     time.Duration
	MaxTokens   int32
	Temperature float32
}

// LLMExtractor implements EntityExtractor on top of an LLMClient.
type LLMExtractor struct {
	client      LLMClient
	model       string
	timeout     time.Duration
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
}

// NewLLMExtractor constructs an LLM-backed entity extractor.
func NewLLMExtractor(client LLMClient, cfg ExtractorConfig, logger *logging.Logger) *LLMExtractor {
	if client == nil {
		panic("conversation: extractor llm client cannot be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		panic("conversation: extractor model id required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &LLMExtractor{
		client:      client,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Extract calls the LLM and defensively parses its JSON output. Any failure
// is reported as ErrExtractorFailed; the caller decides the user-facing
// fallback.
func (e *LLMExtractor) Extract(ctx context.Context, req ExtractionRequest) (map[string]string, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(struct {
		Mode      ExtractMode       `json:"mode"`
		Text      string            `json:"text"`
		Reference string            `json:"fecha_referencia"`
		Field     Field             `json:"campo,omitempty"`
		Known     map[string]string `json:"known,omitempty"`
	}{
		Mode:      req.Mode,
		Text:      req.Text,
		Reference: req.ReferenceDate.Format("2006-01-02 15:04 Monday"),
		Field:     req.Field,
		Known:     req.Known,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrExtractorFailed, err)
	}

	resp, err := e.client.Complete(callCtx, LLMRequest{
		Model:       e.model,
		System:      []string{extractorSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: string(payload)}},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		e.logger.Warn("extractor llm call failed", "error", err, "mode", req.Mode)
		return nil, fmt.Errorf("%w: %v", ErrExtractorFailed, err)
	}

	values, err := parseExtraction(resp.Text)
	if err != nil {
		e.logger.Warn("extractor returned malformed output", "error", err, "mode", req.Mode)
		return nil, err
	}
	return values, nil
}

// parseExtraction sanitizes and decodes the extractor's raw output, keeping
// only vocabulary keys with non-empty string or numeric values.
func parseExtraction(raw string) (map[string]string, error) {
	text := extractJSONObject(stripCodeFence(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrExtractorFailed)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExtractorFailed, err)
	}

	values := make(map[string]string)
	for _, key := range extractorVocabulary {
		v, ok := decoded[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				values[key] = s
			}
		case float64:
			values[key] = strconv.Itoa(int(t))
		}
	}
	return values, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
