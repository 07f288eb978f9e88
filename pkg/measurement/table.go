// Package measurement turns measured regions into result rows and writes them out.
package measurement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"nanorods/internal/models"
	"nanorods/pkg/geometry"
	"nanorods/pkg/regionprops"
)

// Header is the column header of exported tables
var Header = []string{
	"Image name",
	"Nanorod ID",
	"Coordinate in Y",
	"Coordinate in X",
	"Area in nm²",
	"Length in nm",
}

// Row is one measured nanorod. Coordinates are centroid positions in pixels.
type Row struct {
	ImageName   string
	NanorodID   int
	CoordinateY float64
	CoordinateX float64
	AreaNm2     float64
	LengthNm    float64
}

// Tabulate builds one row per label of the map, in ascending label order. Labels without
// a region or without a valid correction are skipped.
func Tabulate(labels *models.LabelMap, regions []regionprops.Region, corrections []geometry.Correction,
	imageName string, pixelSize float64) []Row {

	byLabel := regionprops.Index(regions)
	lengths := make(map[int]geometry.Correction, len(corrections))
	for _, c := range corrections {
		lengths[c.Label] = c
	}

	rows := []Row{}
	for _, id := range labels.Labels() {
		r, ok := byLabel[id]
		if !ok {
			continue
		}
		c, ok := lengths[id]
		if !ok || !c.Valid() {
			continue
		}
		rows = append(rows, Row{
			ImageName:   imageName,
			NanorodID:   id,
			CoordinateY: r.CentroidRow,
			CoordinateX: r.CentroidCol,
			AreaNm2:     float64(r.Area) * pixelSize * pixelSize,
			LengthNm:    c.Length,
		})
	}
	return rows
}

// Table accumulates rows from many images. It is owned by a single goroutine.
type Table struct {
	rows []Row
}

// Append adds rows at the end of the table
func (t *Table) Append(rows []Row) {
	t.rows = append(t.rows, rows...)
}

// Rows returns the accumulated rows
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// WriteCSV writes the header followed by one record per row
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range rows {
		record := []string{
			r.ImageName,
			strconv.Itoa(r.NanorodID),
			formatFloat(r.CoordinateY),
			formatFloat(r.CoordinateX),
			formatFloat(r.AreaNm2),
			formatFloat(r.LengthNm),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
