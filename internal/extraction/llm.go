package extraction

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/adminrag/internal/llm"
)

// DefaultMaxDocChars caps the document text sent to the language model.
const DefaultMaxDocChars = 22000

const extractionSystemPrompt = `You extract data from scanned Brazilian payment slips (boletos) and payment receipts. OCR text may be noisy.
Return ONLY valid JSON.
Target CPF: the payer's CPF (CPF DO PAGADOR).
Prefer the CPF that appears in the block labelled 'PAGADOR' (or 'CPF DO PAGADOR').
Avoid the CPF/CNPJ of the BENEFICIÁRIO/CEDENTE/EMITENTE.
If there is more than one CPF, choose the payer's. If uncertain, use null.
Fields (JSON):
{"cpf": string|null, "payer_name": string|null, "beneficiary": string|null, "linha_digitavel": string|null, "barcode": string|null, "total_value": number|null, "payment_status": "paid"|"unpaid"|"unknown"|null, "payment_date": string|null, "auth_code": string|null, "notes": string|null}
Prefer payment_date as YYYY-MM-DD when possible.`

// LLMAdapter extracts records by asking a language model for structured
// output. It calls the model once and never retries.
type LLMAdapter struct {
	client      llm.Client
	maxDocChars int
}

var _ RecordExtractor = (*LLMAdapter)(nil)

// NewLLMAdapter creates an adapter over client. maxDocChars <= 0 selects
// DefaultMaxDocChars.
func NewLLMAdapter(client llm.Client, maxDocChars int) *LLMAdapter {
	if maxDocChars <= 0 {
		maxDocChars = DefaultMaxDocChars
	}
	return &LLMAdapter{client: client, maxDocChars: maxDocChars}
}

// Extract implements RecordExtractor. Failures are *llm.Error values.
func (a *LLMAdapter) Extract(ctx context.Context, fileName, text, knowledge string) (DocumentRecord, error) {
	if a.client == nil {
		return DocumentRecord{}, &llm.Error{Kind: llm.KindConfiguration, Provider: llm.ProviderNone, Err: fmt.Errorf("no language model configured")}
	}
	system, user := BuildPrompts(Clip(text, a.maxDocChars), knowledge)
	obj, err := a.client.GenerateJSON(ctx, system, user)
	if err != nil {
		return DocumentRecord{}, err
	}
	rec, err := RecordFromJSON(fileName, obj)
	if err != nil {
		return DocumentRecord{}, &llm.Error{Kind: llm.KindParse, Provider: a.client.Provider(), Err: err}
	}
	return rec, nil
}

// BuildPrompts returns the system and user prompts for a document.
func BuildPrompts(text, knowledge string) (system, user string) {
	user = "Context (SOPs / rules):\n" + knowledge + "\n\nOCR text of the document:\n" + text
	return extractionSystemPrompt, user
}

// Clip returns the first n characters of text.
func Clip(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

// RecordFromJSON converts a model response into a record. Missing or null
// fields stay nil; a null payment status becomes unknown.
func RecordFromJSON(fileName string, obj map[string]any) (DocumentRecord, error) {
	rec := DocumentRecord{FileName: fileName, DocType: DocType}

	fields := []struct {
		key string
		dst **string
	}{
		{"cpf", &rec.CPF},
		{"payer_name", &rec.PayerName},
		{"beneficiary", &rec.Beneficiary},
		{"linha_digitavel", &rec.LinhaDigitavel},
		{"barcode", &rec.Barcode},
		{"payment_date", &rec.PaymentDate},
		{"auth_code", &rec.AuthCode},
		{"notes", &rec.Notes},
	}
	for _, f := range fields {
		s, err := optionalString(obj, f.key)
		if err != nil {
			return DocumentRecord{}, err
		}
		*f.dst = s
	}

	value, err := optionalNumber(obj, "total_value")
	if err != nil {
		return DocumentRecord{}, err
	}
	rec.TotalValue = value

	status := StatusUnknown
	if raw, ok := obj["payment_status"]; ok && raw != nil {
		s, isString := raw.(string)
		if !isString {
			return DocumentRecord{}, fmt.Errorf("payment_status: expected string, got %T", raw)
		}
		if s != "" {
			status = PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
			if !status.Valid() {
				return DocumentRecord{}, fmt.Errorf("payment_status: unsupported value %q", s)
			}
		}
	}
	rec.PaymentStatus = statusPtr(status)

	return rec, nil
}

func optionalString(obj map[string]any, key string) (*string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return strPtr(v), nil
	case float64:
		return strPtr(strconv.FormatFloat(v, 'f', -1, 64)), nil
	default:
		return nil, fmt.Errorf("%s: expected string, got %T", key, raw)
	}
}

func optionalNumber(obj map[string]any, key string) (*float64, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case float64:
		return &v, nil
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "R$"))
		if s == "" {
			return nil, nil
		}
		if strings.Contains(s, ",") {
			f, err := parseBRL(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return &f, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("%s: expected number, got %T", key, raw)
	}
}
