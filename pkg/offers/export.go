package offers

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"rentmarket/pkg/models"
)

const exportSheet = "Offers"

var exportHeaders = []string{
	"Offer ID", "Rental request", "Status", "Property address", "Rent", "Deposit",
	"Lease (months)", "Available from", "Payment gateway", "Landlord", "Tenant", "Updated",
}

// WriteSpreadsheet writes the offers as an xlsx workbook.
func WriteSpreadsheet(w io.Writer, items []models.Offer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return err
		}
	}

	for i, o := range items {
		row := i + 2
		gateway := ""
		if o.PreferredPaymentGateway != nil {
			gateway = string(*o.PreferredPaymentGateway)
		}
		values := []any{
			o.ID, o.RentalRequestID, string(o.Status), o.PropertyAddress, o.RentAmount, o.DepositAmount,
			o.LeaseDuration, o.AvailableFrom.Format("02.01.2006"), gateway,
			partyName(o.Landlord), partyName(o.Tenant), o.UpdatedAt.Format("02.01.2006 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	return nil
}

func partyName(p *models.Party) string {
	if p == nil {
		return ""
	}
	return p.Name
}
