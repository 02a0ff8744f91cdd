package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/customsway/backend-cargo/internal/expense"
	"github.com/customsway/backend-cargo/internal/record"
)

// BuildExpensePDF renders the expense statement for one cargo record.
func BuildExpensePDF(rec record.Record, items []expense.StoredItem, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Relación de Gastos"))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("AWB: %s", rec.AWB))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Consignatario: %s", rec.Recipient)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Peso: %s kg", rec.WeightKg.StringFixed(2))))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Bultos: %d", rec.Packages))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Año: %d", rec.Year)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generado: %s", generatedAt.Format("2006-01-02 15:04")))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(110, 6, tr("Concepto"), "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 6, tr("Importe (€)"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Manual", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range items {
		manual := ""
		if item.IsManual {
			manual = tr("Sí")
		}
		pdf.CellFormat(110, 6, tr(item.Concept), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, manual, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(110, 6, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 6, sumAmounts(items).StringFixed(2), "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 6, "", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildExpenseXLSX renders the expense statement as a workbook with a
// summary sheet and an items sheet.
func BuildExpenseXLSX(rec record.Record, items []expense.StoredItem, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "resumen"
	itemsSheet := "gastos"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Relación de Gastos")
	_ = f.SetCellValue(summarySheet, "A3", "AWB")
	_ = f.SetCellValue(summarySheet, "B3", rec.AWB)
	_ = f.SetCellValue(summarySheet, "A4", "Consignatario")
	_ = f.SetCellValue(summarySheet, "B4", rec.Recipient)
	_ = f.SetCellValue(summarySheet, "A5", "Peso (kg)")
	_ = f.SetCellValue(summarySheet, "B5", rec.WeightKg.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A6", "Bultos")
	_ = f.SetCellValue(summarySheet, "B6", rec.Packages)
	_ = f.SetCellValue(summarySheet, "A7", "Año")
	_ = f.SetCellValue(summarySheet, "B7", rec.Year)
	_ = f.SetCellValue(summarySheet, "A8", "Total (€)")
	_ = f.SetCellValue(summarySheet, "B8", sumAmounts(items).InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A9", "Generado")
	_ = f.SetCellValue(summarySheet, "B9", generatedAt.Format("2006-01-02 15:04"))

	_ = f.SetCellValue(itemsSheet, "A1", "Concepto")
	_ = f.SetCellValue(itemsSheet, "B1", "Importe (€)")
	_ = f.SetCellValue(itemsSheet, "C1", "Manual")
	for i, item := range items {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), item.Concept)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), item.Amount.InexactFloat64())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), item.IsManual)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sumAmounts(items []expense.StoredItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total.Round(2)
}
