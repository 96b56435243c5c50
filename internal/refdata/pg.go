package refdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gyeh/feesched/internal/db"
	"github.com/gyeh/feesched/internal/model"
	embedsql "github.com/gyeh/feesched/internal/sql"
)

// Querier is the subset of *pgxpool.Pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGSource serves years that have an active dataset in the ref schema.
type PGSource struct {
	q Querier
}

// NewPGSource returns a Source reading from q.
func NewPGSource(q Querier) *PGSource {
	return &PGSource{q: q}
}

// Years returns years with an active dataset, ascending.
func (s *PGSource) Years(ctx context.Context) ([]int, error) {
	rows, err := s.q.Query(ctx, embedsql.ActiveYears)
	if err != nil {
		return nil, fmt.Errorf("query active years: %w", err)
	}
	years, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (int, error) {
		var y int32
		err := row.Scan(&y)
		return int(y), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan active years: %w", err)
	}
	return years, nil
}

// LoadYear reads one active year into a Snapshot.
func (s *PGSource) LoadYear(ctx context.Context, year int) (*Snapshot, error) {
	var cfNum pgtype.Numeric
	err := s.q.QueryRow(ctx, embedsql.SelectConversionFactor, int32(year)).Scan(&cfNum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, unsupportedYear(year)
	}
	if err != nil {
		return nil, fmt.Errorf("query conversion factor %d: %w", year, err)
	}

	codes, err := s.codes(ctx, year)
	if err != nil {
		return nil, err
	}
	localities, err := s.localities(ctx, year)
	if err != nil {
		return nil, err
	}
	zips, err := s.zips(ctx, year)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(year, db.Decimal(cfNum), codes, localities, zips)
}

func (s *PGSource) codes(ctx context.Context, year int) ([]model.CodeRecord, error) {
	rows, err := s.q.Query(ctx, embedsql.SelectCodes, int32(year))
	if err != nil {
		return nil, fmt.Errorf("query codes %d: %w", year, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CodeRecord, error) {
		var (
			r              model.CodeRecord
			work, nf, f, m pgtype.Numeric
		)
		err := row.Scan(&r.Code, &r.Modifier, &r.Description, &r.StatusCode,
			&work, &nf, &f, &m, &r.NonFacilityPENA, &r.FacilityPENA, &r.GlobalPeriod)
		r.WorkRVU = db.Decimal(work)
		r.NonFacilityPERVU = db.Decimal(nf)
		r.FacilityPERVU = db.Decimal(f)
		r.MalpracticeRVU = db.Decimal(m)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan codes %d: %w", year, err)
	}
	return out, nil
}

func (s *PGSource) localities(ctx context.Context, year int) ([]model.LocalityRecord, error) {
	rows, err := s.q.Query(ctx, embedsql.SelectLocalities, int32(year))
	if err != nil {
		return nil, fmt.Errorf("query localities %d: %w", year, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LocalityRecord, error) {
		var (
			l         model.LocalityRecord
			w, pe, mp pgtype.Numeric
		)
		err := row.Scan(&l.Code, &l.Name, &l.State, &l.Contractor, &w, &pe, &mp, &l.StateDefault)
		l.WorkGPCI = db.Decimal(w)
		l.PEGPCI = db.Decimal(pe)
		l.MPGPCI = db.Decimal(mp)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan localities %d: %w", year, err)
	}
	return out, nil
}

func (s *PGSource) zips(ctx context.Context, year int) ([]model.ZipLocality, error) {
	rows, err := s.q.Query(ctx, embedsql.SelectZipLocalities, int32(year))
	if err != nil {
		return nil, fmt.Errorf("query zip localities %d: %w", year, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ZipLocality, error) {
		var z model.ZipLocality
		err := row.Scan(&z.Zip, &z.State, &z.LocalityCode)
		return z, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan zip localities %d: %w", year, err)
	}
	return out, nil
}
