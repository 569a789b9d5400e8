package extraction

// Validation issue messages, in check order.
const (
	IssueCPFMissing       = "payer CPF not found"
	IssueCPFLength        = "payer CPF invalid (length != 11)"
	IssueWeakEvidence     = "paid without strong evidence (payment_date/auth_code missing)"
	IssueValueMissing     = "total value not found"
	IssueValueNonPositive = "total value invalid (<= 0)"
)

// Validate returns the issues found in rec. Checks run in a fixed order
// and a record can trigger several of them.
func Validate(rec DocumentRecord) []string {
	issues := []string{}

	if rec.CPF == nil || *rec.CPF == "" {
		issues = append(issues, IssueCPFMissing)
	} else if len(digitsOnly(*rec.CPF)) != 11 {
		issues = append(issues, IssueCPFLength)
	}

	if rec.PaymentStatus != nil && *rec.PaymentStatus == StatusPaid &&
		isBlank(rec.PaymentDate) && isBlank(rec.AuthCode) {
		issues = append(issues, IssueWeakEvidence)
	}

	if rec.TotalValue == nil {
		issues = append(issues, IssueValueMissing)
	} else if *rec.TotalValue <= 0 {
		issues = append(issues, IssueValueNonPositive)
	}

	return issues
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}
