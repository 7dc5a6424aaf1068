// Package report renders result records as tables: summary figures, CSV rows and the
// column layout shared with the spreadsheet export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"address-distance/internal/models"
)

// Columns is the order used by every tabular export.
var Columns = []string{"Address", "Distance (km)", "Distance Type", "Status", "Latitude", "Longitude"}

type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	AverageKm  *float64 `json:"average_km"`
}

func Summarize(records []models.ResultRecord) Summary {
	s := Summary{Total: len(records)}

	var sum float64
	for _, r := range records {
		if r.Succeeded() && r.DistanceKm != nil {
			s.Successful++
			sum += *r.DistanceKm
			continue
		}
		s.Failed++
	}

	if s.Successful > 0 {
		avg := sum / float64(s.Successful)
		s.AverageKm = &avg
	}

	return s
}

func formatOptional(f *float64, prec int) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', prec, 64)
}

// Row renders one record in Columns order. Absent values are empty cells.
func Row(r models.ResultRecord) []string {
	return []string{
		r.Address,
		formatOptional(r.DistanceKm, 2),
		r.Strategy.Label(),
		string(r.Status),
		formatOptional(r.Latitude, -1),
		formatOptional(r.Longitude, -1),
	}
}

func WriteCSV(w io.Writer, records []models.ResultRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}

	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("writing row for %q: %w", r.Address, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Filename returns the download name for an export created at t.
func Filename(ext string, t time.Time) string {
	return fmt.Sprintf("distance_results_%d.%s", t.Unix(), ext)
}
