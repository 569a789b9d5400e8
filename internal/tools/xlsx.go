package tools

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/fyrsmithlabs/adminrag/internal/extraction"
)

// SheetName is the worksheet export_xlsx writes.
const SheetName = "docs"

// Columns is the fixed header row of the exported sheet.
var Columns = []string{
	"file_name", "doc_type", "cpf", "payer_name", "beneficiary",
	"linha_digitavel", "barcode", "total_value", "payment_status", "payment_date", "auth_code", "notes",
}

// ExportArgs are the arguments of export_xlsx.
type ExportArgs struct {
	Records []extraction.DocumentRecord `json:"records"`
	OutPath string                      `json:"out_path"`
}

// ExportOutput is returned by export_xlsx.
type ExportOutput struct {
	OK   bool   `json:"ok"`
	XLSX string `json:"xlsx"`
}

// ExportXLSX writes one row per record under a fixed header row.
func (t *Toolset) ExportXLSX(_ context.Context, in ExportArgs) (any, error) {
	path, err := t.prepare(in.OutPath)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, rec := range in.Records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := recordRow(rec)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("saving workbook: %w", err)
	}
	return ExportOutput{OK: true, XLSX: in.OutPath}, nil
}

func recordRow(rec extraction.DocumentRecord) []any {
	str := func(p *string) any {
		if p == nil {
			return nil
		}
		return *p
	}
	var value, status any
	if rec.TotalValue != nil {
		value = *rec.TotalValue
	}
	if rec.PaymentStatus != nil {
		status = string(*rec.PaymentStatus)
	}
	return []any{
		rec.FileName, rec.DocType, str(rec.CPF), str(rec.PayerName), str(rec.Beneficiary),
		str(rec.LinhaDigitavel), str(rec.Barcode), value, status, str(rec.PaymentDate), str(rec.AuthCode), str(rec.Notes),
	}
}
