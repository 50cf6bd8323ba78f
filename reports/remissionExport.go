package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/verdecarbon/biochar_backend/models"
)

// WriteRemissionRegister renders the remission register as an xlsx workbook:
// one row per remission with its state, totals and confirmation parties.
// Backs GET /api/reports/remisiones.xlsx.
func WriteRemissionRegister(w io.Writer, remissions []*models.Remission) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Remisiones"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headers := []string{
		"ID", "Cliente", "NIT", "Fecha Evento", "Estado", "Total (kg)",
		"Lotes", "Entrega Responsable", "Entrega Fecha",
		"Recepción Responsable", "Recepción Fecha",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheet, cell, h)
	}

	for row, r := range remissions {
		set := models.AllocationSet{Items: r.Allocations}
		codes := ""
		for i, a := range r.Allocations {
			if i > 0 {
				codes += ", "
			}
			if a.BatchCode != "" {
				codes += a.BatchCode
			} else {
				codes += a.BatchId
			}
		}

		deliveryName, deliveryDate := "", ""
		if r.DeliveryInfo != nil {
			deliveryName = r.DeliveryInfo.ResponsibleName
			deliveryDate = r.DeliveryInfo.ConfirmedAt.Format("2006-01-02 15:04")
		}
		receiptName, receiptDate := "", ""
		if r.ReceiptInfo != nil {
			receiptName = r.ReceiptInfo.ResponsibleName
			receiptDate = r.ReceiptInfo.ConfirmedAt.Format("2006-01-02 15:04")
		}

		total, _ := set.Total().Float64()
		values := []any{
			r.ID, r.ClientName, r.ClientTaxId, r.EventDate.Format("2006-01-02"),
			string(r.State()), total, codes,
			deliveryName, deliveryDate, receiptName, receiptDate,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			f.SetCellValue(sheet, cell, v)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write remission register: %w", err)
	}
	return nil
}
