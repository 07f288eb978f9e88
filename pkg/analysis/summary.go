package analysis

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"nanorods/pkg/measurement"
)

// Summary describes a finished batch
type Summary struct {
	OutputDir string
	Folders   int

	// ImagesProcessed counts micrographs analyzed without error
	ImagesProcessed     int
	ImagesWithParticles int
	Particles           int

	// LengthMeanNm and LengthStdNm describe the corrected lengths of all particles
	LengthMeanNm float64
	LengthStdNm  float64

	Failures []Failure
	Elapsed  time.Duration
}

func (s *Summary) finish(rows []measurement.Row, elapsed time.Duration) {
	s.Particles = len(rows)
	s.Elapsed = elapsed
	s.LengthMeanNm, s.LengthStdNm = LengthStats(rows)
}

// LengthStats returns the mean and sample standard deviation of the row lengths.
// The deviation is 0 for fewer than two rows.
func LengthStats(rows []measurement.Row) (mean, std float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	lengths := make([]float64, len(rows))
	for i, r := range rows {
		lengths[i] = r.LengthNm
	}
	if len(lengths) == 1 {
		return lengths[0], 0
	}
	return stat.MeanStdDev(lengths, nil)
}
