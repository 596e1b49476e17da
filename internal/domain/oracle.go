package domain

import "context"

// ReportSource supplies the outcome value for settlement, as a
// fixed-point value with two implied decimal digits. The source is
// trusted; the engine only checks that the value falls inside the
// configured outcome bounds.
type ReportSource interface {
	Report(ctx context.Context) (int64, error)
}
