package extraction

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Payer scoring weights.
const (
	// PayerLabelWeight is added for each payer label inside the window.
	PayerLabelWeight = 8
	// NonPayerLabelWeight is added (it is negative) for each beneficiary or
	// issuer label inside the window.
	NonPayerLabelWeight = -10
	// CPFTagWeight is added when the literal "CPF" appears in the window.
	CPFTagWeight = 2
	// ElevenDigitWeight is added when the candidate has exactly 11 digits.
	ElevenDigitWeight = 1
	// MinPayerScore is the lowest best score trusted over the first match.
	MinPayerScore = 2
	// ContextWindow is the number of characters inspected on each side of
	// a candidate.
	ContextWindow = 180
)

var (
	payerLabels    = []string{"PAGADOR", "CPF DO PAGADOR", "CPF PAGADOR", "DADOS DO PAGADOR"}
	nonPayerLabels = []string{"BENEFICIARIO", "BENEFICIÁRIO", "CEDENTE", "EMITENTE", "FAVORECIDO", "RECEBEDOR"}
	paidHints      = []string{
		"PAGO", "PAGAMENTO EFETUADO", "PAGAMENTO CONFIRMADO", "TRANSACAO EFETUADA",
		"COMPROVANTE", "AUTENTICACAO", "AUTENTICAÇÃO", "QUITADO", "LIQUIDADO",
	}
	unpaidHints = []string{"VENCIMENTO", "VENCE"}

	cpfRe      = regexp.MustCompile(`\b(\d{3}\.?\d{3}\.?\d{3}-?\d{2})\b`)
	moneyRe    = regexp.MustCompile(`R\$\s*([\d.]+,\d{2})`)
	dateRe     = regexp.MustCompile(`\b(\d{2}[/-]\d{2}[/-]\d{4})\b`)
	authRe     = regexp.MustCompile(`(?i)(AUTENTICACAO|AUTENTICAÇÃO|COD\.?\s*AUT)\s*[:\-]?\s*([A-Z0-9\-/]{6,})`)
	linhaRe    = regexp.MustCompile(`(\d{5}\.?\d{5}\s*\d{5}\.?\d{6}\s*\d{5}\.?\d{6}\s*\d\s*\d{14})`)
	spaceRunRe = regexp.MustCompile(`\s+`)
)

// PayerCandidate is a tax-id match with its contextual score.
type PayerCandidate struct {
	Value    string
	Position int
	Score    int
}

// FieldExtractor extracts record fields from text using pattern matching.
// It never fails; fields it cannot find stay nil.
type FieldExtractor struct{}

// NewFieldExtractor creates a heuristic field extractor.
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{}
}

// ExtractRecord builds a record for fileName from text.
func (f *FieldExtractor) ExtractRecord(fileName, text string) DocumentRecord {
	rec := DocumentRecord{
		FileName: fileName,
		DocType:  DocType,
	}
	if cpf, ok := PickPayerCPF(text); ok {
		rec.CPF = strPtr(cpf)
	}
	if v, ok := ParseMoney(text); ok {
		rec.TotalValue = &v
	}
	rec.PaymentStatus = statusPtr(DetectStatus(text))
	if d, ok := ParseDate(text); ok {
		rec.PaymentDate = strPtr(d)
	}
	if m := authRe.FindStringSubmatch(text); m != nil {
		rec.AuthCode = strPtr(m[2])
	}
	if m := linhaRe.FindString(text); m != "" {
		rec.LinhaDigitavel = strPtr(collapseSpaces(m))
	}
	return rec
}

// normalize upper-cases text and collapses runs of whitespace.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToUpper(text)), " ")
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}

// ScorePayerCandidate scores a candidate by the labels found in window.
func ScorePayerCandidate(window, candidate string) int {
	score := 0
	for _, label := range payerLabels {
		if strings.Contains(window, label) {
			score += PayerLabelWeight
		}
	}
	for _, label := range nonPayerLabels {
		if strings.Contains(window, label) {
			score += NonPayerLabelWeight
		}
	}
	if strings.Contains(window, "CPF") {
		score += CPFTagWeight
	}
	if len(digitsOnly(candidate)) == 11 {
		score += ElevenDigitWeight
	}
	return score
}

// PayerCandidates returns every tax-id match in text with its score, in
// ranking order: score descending, then earlier position first.
func PayerCandidates(text string) []PayerCandidate {
	norm := normalize(text)
	matches := cpfRe.FindAllStringSubmatchIndex(norm, -1)
	if len(matches) == 0 {
		return nil
	}

	runes := []rune(norm)
	candidates := make([]PayerCandidate, 0, len(matches))
	for _, m := range matches {
		start := utf8.RuneCountInString(norm[:m[2]])
		lo := max(0, start-ContextWindow)
		hi := min(len(runes), start+ContextWindow)
		value := norm[m[2]:m[3]]
		candidates = append(candidates, PayerCandidate{
			Value:    value,
			Position: start,
			Score:    ScorePayerCandidate(string(runes[lo:hi]), value),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Position < candidates[j].Position
	})
	return candidates
}

// PickPayerCPF returns the most likely payer tax-id in text. When the best
// candidate scores below MinPayerScore the first match in the document is
// returned instead.
func PickPayerCPF(text string) (string, bool) {
	candidates := PayerCandidates(text)
	if len(candidates) == 0 {
		return "", false
	}
	if candidates[0].Score >= MinPayerScore {
		return candidates[0].Value, true
	}
	first := candidates[0]
	for _, c := range candidates[1:] {
		if c.Position < first.Position {
			first = c
		}
	}
	return first.Value, true
}

// ParseMoney returns the largest "R$ 1.234,56" amount in text.
func ParseMoney(text string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, m := range moneyRe.FindAllStringSubmatch(text, -1) {
		v, err := parseBRL(m[1])
		if err != nil {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}

func parseBRL(s string) (float64, error) {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}

// ParseDate returns the first DD/MM/YYYY (or DD-MM-YYYY) date in text as
// YYYY-MM-DD. Matches that are not calendar dates are ignored.
func ParseDate(text string) (string, bool) {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	t, err := time.Parse("02/01/2006", strings.ReplaceAll(m[1], "-", "/"))
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// DetectStatus infers the payment status from keywords.
func DetectStatus(text string) PaymentStatus {
	up := strings.ToUpper(text)
	for _, h := range paidHints {
		if strings.Contains(up, h) {
			return StatusPaid
		}
	}
	for _, h := range unpaidHints {
		if strings.Contains(up, h) {
			return StatusUnpaid
		}
	}
	return StatusUnknown
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
