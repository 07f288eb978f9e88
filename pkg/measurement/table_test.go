package measurement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"

	"nanorods/internal/models"
	"nanorods/pkg/geometry"
	"nanorods/pkg/regionprops"
)

func barLabels() *models.LabelMap {
	// 1: 30x16 bar at (5,5), 2: 40x12 bar at (5,30)
	labels := models.NewLabelMap(60, 50)
	for y := 5; y < 21; y++ {
		for x := 5; x < 35; x++ {
			labels.Pix[y*60+x] = 1
		}
	}
	for y := 30; y < 42; y++ {
		for x := 5; x < 45; x++ {
			labels.Pix[y*60+x] = 2
		}
	}
	return labels
}

func TestTabulate(t *testing.T) {
	labels := barLabels()
	regions := regionprops.Compute(labels, nil)
	corrections := geometry.CorrectAll(regions, 2, geometry.DefaultOffsetNm)

	rows := Tabulate(labels, regions, corrections, "img_001.mrc", 2)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.ImageName != "img_001.mrc" || first.NanorodID != 1 {
		t.Errorf("unexpected first row %+v", first)
	}
	if first.CoordinateY != 12.5 || first.CoordinateX != 19.5 {
		t.Errorf("centroid = (%v, %v), want (12.5, 19.5)", first.CoordinateY, first.CoordinateX)
	}
	if first.AreaNm2 != 480*4 {
		t.Errorf("area = %v, want %v", first.AreaNm2, 480*4)
	}
	if math.Abs(first.LengthNm-corrections[0].Length) > 1e-12 {
		t.Errorf("length = %v, want %v", first.LengthNm, corrections[0].Length)
	}
	if rows[1].NanorodID != 2 {
		t.Errorf("rows out of order: %+v", rows)
	}
}

func TestTabulateSkipsInvalid(t *testing.T) {
	labels := barLabels()
	regions := regionprops.Compute(labels, nil)
	corrections := []geometry.Correction{
		{Label: 1, Err: geometry.ErrDegenerateGeometry},
		{Label: 2, Length: 70, AreaToLength: 10},
	}

	rows := Tabulate(labels, regions, corrections, "a.mrc", 1)
	if len(rows) != 1 || rows[0].NanorodID != 2 || rows[0].LengthNm != 70 {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestTabulateEmpty(t *testing.T) {
	rows := Tabulate(models.NewLabelMap(4, 4), nil, nil, "empty.mrc", 1)
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected an empty non-nil slice, got %#v", rows)
	}
}

func TestTable(t *testing.T) {
	var table Table
	if table.Len() != 0 {
		t.Fatal("new table should be empty")
	}
	table.Append([]Row{{ImageName: "a", NanorodID: 1}, {ImageName: "a", NanorodID: 2}})
	table.Append(nil)
	table.Append([]Row{{ImageName: "b", NanorodID: 1}})

	rows := table.Rows()
	if table.Len() != 3 || rows[2].ImageName != "b" || rows[1].NanorodID != 2 {
		t.Errorf("unexpected table contents %+v", rows)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []Row{
		{ImageName: "grid 1, image.mrc", NanorodID: 3, CoordinateY: 12.5, CoordinateX: 7, AreaNm2: 1920, LengthNm: 58.5},
	}
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if strings.Join(records[0], "|") != strings.Join(Header, "|") {
		t.Errorf("header = %v", records[0])
	}
	want := []string{"grid 1, image.mrc", "3", "12.5", "7", "1920", "58.5"}
	for i := range want {
		if records[1][i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, records[1][i], want[i])
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSVError(t *testing.T) {
	if err := WriteCSV(failingWriter{}, []Row{{ImageName: "a", NanorodID: 1}}); err == nil {
		t.Error("expected write error")
	}
}
