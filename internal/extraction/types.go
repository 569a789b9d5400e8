package extraction

import (
	"context"
)

// DocType is the only document type this package produces.
const DocType = "boleto_comprovante"

// Method tags appended to a Result's issues.
const (
	TagLLM           = "extraction:llm"
	TagRegexFallback = "extraction:regex_fallback"
)

// PaymentStatus is the payment state observed on a document.
type PaymentStatus string

// Payment status values.
const (
	StatusPaid    PaymentStatus = "paid"
	StatusUnpaid  PaymentStatus = "unpaid"
	StatusUnknown PaymentStatus = "unknown"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPaid, StatusUnpaid, StatusUnknown:
		return true
	}
	return false
}

// DocumentRecord holds the fields extracted from a single document.
// Nullable fields are pointers and serialize as JSON null when unset.
type DocumentRecord struct {
	FileName       string         `json:"file_name"`
	DocType        string         `json:"doc_type"`
	CPF            *string        `json:"cpf"`
	PayerName      *string        `json:"payer_name"`
	Beneficiary    *string        `json:"beneficiary"`
	LinhaDigitavel *string        `json:"linha_digitavel"`
	Barcode        *string        `json:"barcode"`
	TotalValue     *float64       `json:"total_value"`
	PaymentStatus  *PaymentStatus `json:"payment_status"`
	PaymentDate    *string        `json:"payment_date"`
	AuthCode       *string        `json:"auth_code"`
	Notes          *string        `json:"notes"`
}

// Result is the outcome of extracting one document.
type Result struct {
	Record           DocumentRecord `json:"record"`
	Issues           []string       `json:"issues"`
	KnowledgeSources []string       `json:"knowledge_sources"`
}

// Method returns the extraction method tag carried by the result, or an
// empty string if none was appended.
func (r Result) Method() string {
	for i := len(r.Issues) - 1; i >= 0; i-- {
		if r.Issues[i] == TagLLM || r.Issues[i] == TagRegexFallback {
			return r.Issues[i]
		}
	}
	return ""
}

// RecordExtractor produces a DocumentRecord from document text.
type RecordExtractor interface {
	// Extract builds a record for fileName from text. knowledge is the
	// formatted retrieval context and may be empty.
	Extract(ctx context.Context, fileName, text, knowledge string) (DocumentRecord, error)
}

func strPtr(s string) *string { return &s }

func statusPtr(s PaymentStatus) *PaymentStatus { return &s }
