package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

const (
	summarySheet = "Summary"
	escrowSheet  = "Escrows"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate writes the escrows of an account as a two-sheet workbook: role
// totals and one row per escrow.
func (g *Generator) Generate(export model.AccountExport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if err := g.writeSummary(file, export); err != nil {
		return nil, err
	}
	if _, err := file.NewSheet(escrowSheet); err != nil {
		return nil, err
	}
	if err := g.writeEscrows(file, export); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, export model.AccountExport) error {
	var asDepositor, asBeneficiary, active int
	for _, e := range export.Escrows {
		switch {
		case e.Depositor == export.Account:
			asDepositor++
		case e.Beneficiary != nil && *e.Beneficiary == export.Account:
			asBeneficiary++
		}
		if e.HoldsFunds() {
			active++
		}
	}

	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(summarySheet, cell, value)
	}

	set("A1", "Account")
	set("B1", export.Account)
	set("A2", "Ledger sequence")
	set("B2", export.Sequence)
	set("A3", "Escrows")
	set("B3", len(export.Escrows))
	set("A4", "As depositor")
	set("B4", asDepositor)
	set("A5", "As beneficiary")
	set("B5", asBeneficiary)
	set("A6", "Holding funds")
	set("B6", active)

	return file.SetColWidth(summarySheet, "A", "B", 24)
}

func (g *Generator) writeEscrows(file *excelize.File, export model.AccountExport) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(escrowSheet, cell, value)
	}

	headers := []string{
		"ID",
		"Title",
		"Role",
		"Counterparty",
		"Asset",
		"Total",
		"Paid",
		"Fee",
		"Status",
		"Milestones",
		"Deadline",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, header)
	}

	for i, e := range export.Escrows {
		row := i + 2
		role, counterparty := roleOf(export.Account, e)
		// Amounts stay strings: they may exceed float64 precision.
		set(fmt.Sprintf("A%d", row), e.ID)
		set(fmt.Sprintf("B%d", row), e.Title)
		set(fmt.Sprintf("C%d", row), role)
		set(fmt.Sprintf("D%d", row), counterparty)
		set(fmt.Sprintf("E%d", row), formatString(e.Asset, "native"))
		set(fmt.Sprintf("F%d", row), e.TotalAmount.String())
		set(fmt.Sprintf("G%d", row), e.PaidAmount.String())
		set(fmt.Sprintf("H%d", row), e.PlatformFee.String())
		set(fmt.Sprintf("I%d", row), string(e.Status))
		set(fmt.Sprintf("J%d", row), e.MilestoneCount)
		set(fmt.Sprintf("K%d", row), e.Deadline)
	}

	if err := file.SetColWidth(escrowSheet, "B", "B", 32); err != nil {
		return err
	}
	return file.SetColWidth(escrowSheet, "C", "K", 16)
}

func roleOf(account string, e model.Escrow) (string, string) {
	if e.Depositor == account {
		return "depositor", formatString(e.Beneficiary, "")
	}
	return "beneficiary", e.Depositor
}

func formatString(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
