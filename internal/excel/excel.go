package excel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"address-distance/internal/input"
	"address-distance/internal/models"
	"address-distance/internal/report"

	"github.com/xuri/excelize/v2"
)

const ResultSheet = "Distance Results"

func OpenFile(filename string) (*excelize.File, error) {
	return excelize.OpenFile(filename)
}

func OpenReader(r io.Reader) (*excelize.File, error) {
	return excelize.OpenReader(r)
}

// ReadAddresses returns the first column of the first sheet. A leading "Address" header
// cell is skipped.
func ReadAddresses(f *excelize.File) ([]string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	var addresses []string
	for i, row := range rows {
		if len(row) == 0 {
			continue // Empty row
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "address") {
			continue // Header
		}
		addresses = append(addresses, row[0])
	}

	return input.Clean(addresses), nil
}

func WriteResult(path string, records []models.ResultRecord) error {
	f, err := buildResult(records)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.SaveAs(path)
}

// WriteResultTo streams the workbook, used for HTTP downloads.
func WriteResultTo(w io.Writer, records []models.ResultRecord) error {
	f, err := buildResult(records)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Write(w)
}

func buildResult(records []models.ResultRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(ResultSheet)
	if err != nil {
		return nil, err
	}

	// Use Stream Writer for performance
	sw, err := f.NewStreamWriter(ResultSheet)
	if err != nil {
		return nil, err
	}

	headers := make([]interface{}, len(report.Columns))
	for i, c := range report.Columns {
		headers[i] = c
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return nil, err
	}

	for i, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			r.Address, optional(r.DistanceKm), r.Strategy.Label(), string(r.Status),
			optional(r.Latitude), optional(r.Longitude),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, err
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, err
	}

	f.SetActiveSheet(index)
	// Delete default sheet
	f.DeleteSheet("Sheet1")

	return f, nil
}

// optional leaves the cell empty for absent values.
func optional(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// Archive writes every finished run to <Dir>/<id>.xlsx.
type Archive struct {
	Dir string
}

func (a Archive) Record(_ context.Context, id string, run *models.Run) error {
	if err := os.MkdirAll(a.Dir, 0755); err != nil {
		return err
	}
	return WriteResult(filepath.Join(a.Dir, id+".xlsx"), run.Records)
}
