// Package report builds the administrator's payment ledger straight from SQL.
package report

import (
	"context"
	"database/sql"
	"fmt"

	"ms-auction/internal/models"

	"github.com/Masterminds/squirrel"
)

type Report struct {
	DB         *sql.DB
	SqlBuilder squirrel.StatementBuilderType
}

// New returns a Report issuing queries with the given placeholder format
// (squirrel.Dollar for Postgres).
func New(db *sql.DB, format squirrel.PlaceholderFormat) *Report {
	return &Report{
		DB:         db,
		SqlBuilder: squirrel.StatementBuilder.PlaceholderFormat(format),
	}
}

func applyFilter(q squirrel.SelectBuilder, f models.PaymentReportFilter) squirrel.SelectBuilder {
	if f.Status != "" {
		q = q.Where(squirrel.Eq{"p.status": string(f.Status)})
	}
	if f.Method != "" {
		q = q.Where(squirrel.Eq{"p.method": string(f.Method)})
	}
	return q
}

func (r *Report) Build(ctx context.Context, f models.PaymentReportFilter) (*models.PaymentReport, error) {
	payments, err := r.payments(ctx, f)
	if err != nil {
		return nil, err
	}
	totals, err := r.totals(ctx, f)
	if err != nil {
		return nil, err
	}
	return &models.PaymentReport{Payments: payments, Totals: totals}, nil
}

func (r *Report) payments(ctx context.Context, f models.PaymentReportFilter) ([]models.PaymentSummary, error) {
	query, args, err := applyFilter(r.SqlBuilder.
		Select("p.item_id", "i.title", "p.bidder_id", "p.method", "p.status", "p.amount").
		From("payments p").
		InnerJoin("items i ON i.id = p.item_id"), f).
		OrderBy("i.title", "p.item_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment report query: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payment report: %w", err)
	}
	defer rows.Close()

	out := []models.PaymentSummary{}
	for rows.Next() {
		var s models.PaymentSummary
		if err := rows.Scan(&s.ItemID, &s.ItemTitle, &s.BidderID, &s.Method, &s.Status, &s.Amount); err != nil {
			return nil, fmt.Errorf("scan payment report row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Report) totals(ctx context.Context, f models.PaymentReportFilter) ([]models.PaymentTotal, error) {
	query, args, err := applyFilter(r.SqlBuilder.
		Select("p.status", "COUNT(*)", "COALESCE(SUM(p.amount), 0)").
		From("payments p"), f).
		GroupBy("p.status").
		OrderBy("p.status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment totals query: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payment totals: %w", err)
	}
	defer rows.Close()

	out := []models.PaymentTotal{}
	for rows.Next() {
		var t models.PaymentTotal
		if err := rows.Scan(&t.Status, &t.Count, &t.Amount); err != nil {
			return nil, fmt.Errorf("scan payment totals row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
