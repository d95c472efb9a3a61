// Package export renders a user's found items as CSV, JSON or XLSX downloads.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/xuri/excelize/v2"
)

// Format is an export file format.
type Format string

const (
	FormatExcel Format = "excel"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// SheetName is the name of the worksheet in XLSX exports.
const SheetName = "Found items"

var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat parses the format query parameter. An empty value selects Excel.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatExcel, nil
	case FormatExcel, FormatJSON, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the media type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Filename returns the attachment file name for the format.
func (f Format) Filename() string {
	switch f {
	case FormatCSV:
		return "found_items.csv"
	case FormatJSON:
		return "found_items.json"
	default:
		return "found_items.xlsx"
	}
}

// Write renders items in the given format.
func Write(w io.Writer, format Format, items []*models.FoundItem) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, items)
	case FormatJSON:
		return writeJSON(w, items)
	case FormatExcel:
		return writeExcel(w, items)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

var csvHeader = []string{"registry_number", "id", "item_name", "found_location", "found_date", "created_at"}

func writeCSV(w io.Writer, items []*models.FoundItem) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, item := range items {
		record := []string{
			item.RegistryNumber,
			item.ItemID.String(),
			item.ItemName,
			item.FoundLocation,
			foundDate(item),
			createdAt(item),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

type jsonItem struct {
	RegistryNumber string  `json:"registry_number"`
	ID             string  `json:"id"`
	ItemName       string  `json:"item_name"`
	ItemColor      *string `json:"item_color"`
	ItemBrand      *string `json:"item_brand"`
	FoundLocation  string  `json:"found_location"`
	FoundDate      string  `json:"found_date"`
	CreatedAt      string  `json:"created_at"`
}

func writeJSON(w io.Writer, items []*models.FoundItem) error {
	out := make([]jsonItem, 0, len(items))
	for _, item := range items {
		out = append(out, jsonItem{
			RegistryNumber: item.RegistryNumber,
			ID:             item.ItemID.String(),
			ItemName:       item.ItemName,
			ItemColor:      item.ItemColor,
			ItemBrand:      item.ItemBrand,
			FoundLocation:  item.FoundLocation,
			FoundDate:      foundDate(item),
			CreatedAt:      createdAt(item),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode json export: %w", err)
	}
	return nil
}

var excelHeader = []any{"Registry number", "ID", "Item name", "Color", "Brand", "Found location", "Found date", "Created at"}

func writeExcel(w io.Writer, items []*models.FoundItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name worksheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	if err := sw.SetRow("A1", excelHeader); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, item := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		row := []any{
			item.RegistryNumber,
			item.ItemID.String(),
			item.ItemName,
			deref(item.ItemColor),
			deref(item.ItemBrand),
			item.FoundLocation,
			foundDate(item),
			createdAt(item),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush worksheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func foundDate(item *models.FoundItem) string {
	if item.FoundAt.IsZero() {
		return ""
	}
	return item.FoundAt.Format(time.DateOnly)
}

func createdAt(item *models.FoundItem) string {
	if item.CreatedAt.IsZero() {
		return ""
	}
	return item.CreatedAt.Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
