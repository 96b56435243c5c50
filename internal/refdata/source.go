package refdata

import "context"

// Source loads reference tables for one year. Implementations return an
// error matching model.ErrUnsupportedYear when the year is not available.
type Source interface {
	Years(ctx context.Context) ([]int, error)
	LoadYear(ctx context.Context, year int) (*Snapshot, error)
}
