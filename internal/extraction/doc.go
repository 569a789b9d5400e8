// Package extraction turns payment-slip text into DocumentRecords and
// validates them.
//
// The package supports:
//   - Heuristic field extraction (payer CPF scoring, amounts, dates,
//     payment status, authorization code, payment line)
//   - LLM-based extraction through an llm.Client with tolerant decoding
//   - Record validation producing ordered issue strings
//
// # Payer CPF scoring
//
// Every CPF-shaped match is scored from the labels found within
// ContextWindow characters on either side:
//
//	+8  per payer label ("PAGADOR", "CPF DO PAGADOR", ...)
//	-10 per beneficiary/issuer label ("BENEFICIARIO", "CEDENTE", ...)
//	+2  when "CPF" appears
//	+1  when the match has exactly 11 digits
//
// The best score wins, earlier matches win ties. A best score below
// MinPayerScore falls back to the first match in the document.
//
// # Usage
//
//	fe := extraction.NewFieldExtractor()
//	rec := fe.ExtractRecord("slip.pdf", text)
//	issues := extraction.Validate(rec)
package extraction
