// Package interfaces renders E-Way Bill record exports.
package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	ewaybillapp "ewaybill-cloud/internal/ewaybill/application"
	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
	"ewaybill-cloud/internal/observability/metrics"
)

// BuildEWayBillExport renders a record in the requested format and returns
// the document bytes with their content type.
func BuildEWayBillExport(summary *ewaybillapp.RecordSummary, history []ewaybill.HistoryEntry, format string) ([]byte, string, error) {
	start := time.Now()
	var data []byte
	var contentType string
	var err error
	switch format {
	case "pdf":
		data, err = BuildEWayBillPDF(summary, history)
		contentType = "application/pdf"
	case "xlsx":
		data, err = BuildEWayBillXLSX(summary, history)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		err = fmt.Errorf("export: unsupported format %q", format)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport(format, result, time.Since(start))
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// BuildEWayBillPDF renders a minimal PDF for a record.
func BuildEWayBillPDF(summary *ewaybillapp.RecordSummary, history []ewaybill.HistoryEntry) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "E-Way Bill")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Document No: %s", summary.DocumentNo))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", summary.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Supplier GSTIN: %s", summary.SupplierGSTIN))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Recipient GSTIN: %s", summary.RecipientGSTIN))
	pdf.Ln(5)
	if summary.VehicleNumber != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Vehicle: %s", summary.VehicleNumber))
		pdf.Ln(5)
	}
	if summary.TransporterID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Transporter: %s %s", summary.TransporterID, summary.TransporterName))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Valid From: %s", summary.ValidFrom.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Valid Until: %s", summary.ValidUntil.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", summary.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if summary.Cancellation != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Cancelled: %s (%s)", summary.Cancellation.CancelledAt.Format(time.RFC3339), summary.Cancellation.ReasonCode))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	// History table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "When", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Event", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, entry := range history {
		pdf.CellFormat(40, 6, entry.OccurredAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, entry.Kind, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEWayBillXLSX renders a minimal XLSX for a record.
func BuildEWayBillXLSX(summary *ewaybillapp.RecordSummary, history []ewaybill.HistoryEntry) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	historySheet := "history"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(historySheet)

	_ = f.SetCellValue(summarySheet, "A1", "E-Way Bill")
	_ = f.SetCellValue(summarySheet, "A3", "Document No")
	_ = f.SetCellValue(summarySheet, "B3", summary.DocumentNo)
	_ = f.SetCellValue(summarySheet, "A4", "Status")
	_ = f.SetCellValue(summarySheet, "B4", string(summary.Status))
	_ = f.SetCellValue(summarySheet, "A5", "Supplier GSTIN")
	_ = f.SetCellValue(summarySheet, "B5", summary.SupplierGSTIN)
	_ = f.SetCellValue(summarySheet, "A6", "Recipient GSTIN")
	_ = f.SetCellValue(summarySheet, "B6", summary.RecipientGSTIN)
	_ = f.SetCellValue(summarySheet, "A7", "Vehicle")
	_ = f.SetCellValue(summarySheet, "B7", summary.VehicleNumber)
	_ = f.SetCellValue(summarySheet, "A8", "Transporter ID")
	_ = f.SetCellValue(summarySheet, "B8", summary.TransporterID)
	_ = f.SetCellValue(summarySheet, "A9", "Valid From")
	_ = f.SetCellValue(summarySheet, "B9", summary.ValidFrom.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A10", "Valid Until")
	_ = f.SetCellValue(summarySheet, "B10", summary.ValidUntil.Format(time.RFC3339))

	_ = f.SetCellValue(historySheet, "A1", "When")
	_ = f.SetCellValue(historySheet, "B1", "Event")
	_ = f.SetCellValue(historySheet, "C1", "Detail")
	for i, entry := range history {
		row := i + 2
		_ = f.SetCellValue(historySheet, fmt.Sprintf("A%d", row), entry.OccurredAt.Format(time.RFC3339))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("B%d", row), entry.Kind)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("C%d", row), string(entry.Detail))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
