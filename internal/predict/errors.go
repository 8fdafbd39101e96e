package predict

import "errors"

// Engine failures. Callers match them with errors.Is; the wrapped message
// carries the offending counts.
var (
	// ErrInsufficientData is returned when there are no timestamps to anchor a cycle on.
	ErrInsufficientData = errors.New("insufficient data: no sleep or wake timestamps")

	// ErrInsufficientHistory is returned when fewer than two observations exist,
	// leaving no lookback window to average over.
	ErrInsufficientHistory = errors.New("insufficient history: at least two observations are required")

	// ErrMismatchedSeries is returned when the sleep and wake series cannot be paired.
	ErrMismatchedSeries = errors.New("mismatched sleep and wake series")
)
