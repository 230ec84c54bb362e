package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"refdata/internal/model"
	"refdata/internal/repository"
)

// ReferencePostgres is a PostgreSQL implementation of repository.ReferenceRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ReferencePostgres struct {
	db *sql.DB
}

// NewReferencePostgres creates a new ReferencePostgres repository.
func NewReferencePostgres(db *sql.DB) *ReferencePostgres {
	return &ReferencePostgres{db: db}
}

var _ repository.ReferenceRepository = (*ReferencePostgres)(nil)

const selectColumns = `id, code, title, COALESCE(description, ''), COALESCE(attributes, '{}'::jsonb)`

// whereClause renders the filter for resource and c, returning the SQL fragment and its args.
// Attribute names are bound as parameters, never interpolated.
func whereClause(resource string, c repository.Criteria) (string, []any) {
	args := []any{resource}
	conds := []string{"resource = $1"}
	for _, k := range c.Keys() {
		switch k {
		case "code", "title":
			args = append(args, c[k])
			conds = append(conds, fmt.Sprintf("%s = $%d", k, len(args)))
		default:
			args = append(args, k, c[k])
			// Only scalar attributes are comparable; objects and arrays never match.
			conds = append(conds, fmt.Sprintf("jsonb_typeof(attributes->$%[1]d::text) IN ('string', 'number', 'boolean') AND attributes->>$%[1]d::text = $%[2]d", len(args)-1, len(args)))
		}
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// List returns items using LIMIT/OFFSET pagination and a total count.
func (r *ReferencePostgres) List(ctx context.Context, resource string, c repository.Criteria, pq repository.PageQuery) (*repository.PageResult[model.ReferenceItem], error) {
	where, args := whereClause(resource, c)

	var total int
	qCount := "SELECT COUNT(*) FROM reference_items " + where
	if err := r.db.QueryRowContext(ctx, qCount, args...).Scan(&total); err != nil {
		return nil, err
	}

	qList := "SELECT " + selectColumns + " FROM reference_items " + where + " ORDER BY code ASC, id ASC"
	if pq.Limit > 0 {
		args = append(args, pq.Limit)
		qList += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if pq.Offset > 0 {
		args = append(args, pq.Offset)
		qList += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, qList, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.ReferenceItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.ReferenceItem]{
		Items: items,
		Total: total,
	}, nil
}

// FindByID fetches a single item by resource and GUID.
func (r *ReferencePostgres) FindByID(ctx context.Context, resource, id string) (*model.ReferenceItem, error) {
	q := "SELECT " + selectColumns + " FROM reference_items WHERE resource = $1 AND id = $2"
	return scanItem(r.db.QueryRowContext(ctx, q, resource, id))
}

// PrivateProperties lists the data-privacy settings of a resource.
func (r *ReferencePostgres) PrivateProperties(ctx context.Context, resource string) ([]string, error) {
	const q = `SELECT property FROM data_privacy_settings WHERE resource = $1 ORDER BY property`
	rows, err := r.db.QueryContext(ctx, q, resource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*model.ReferenceItem, error) {
	var (
		item  model.ReferenceItem
		attrs []byte
	)
	if err := s.Scan(&item.ID, &item.Code, &item.Title, &item.Description, &attrs); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &item.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", item.ID, err)
		}
	}
	return &item, nil
}
