package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// GenericCreate inserts model as a JSONB document into table, keyed by id
// within tenantID, returning the stored row's timestamps onto model via
// onResult when it unmarshals cleanly.
func GenericCreate[T any](ctx context.Context, r *Repository, table, tenantID, id string, model *T, onResult func(T)) error {
	if model == nil {
		return fmt.Errorf("%s: model cannot be nil", table)
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	data, err := marshalDoc(model)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, tenant_id, data, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 RETURNING data`, table)

	var returned []byte
	if err := r.db.QueryRowxContext(ctx, query, id, tenantID, data).Scan(&returned); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrDatabaseError, table, err)
	}
	if onResult != nil {
		var value T
		if json.Unmarshal(returned, &value) == nil {
			onResult(value)
		}
	}
	return nil
}

// GenericGetByID fetches a single document by its primary key.
func GenericGetByID[T any](ctx context.Context, r *Repository, table, tenantID, id string) (*T, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE tenant_id = $1 AND id = $2`, table)

	var data []byte
	err := r.db.QueryRowxContext(ctx, query, tenantID, id).Scan(&data)
	if scanNoRows(err) {
		return nil, NewNotFoundError(table, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrDatabaseError, table, err)
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %v", ErrDatabaseError, table, err)
	}
	return &value, nil
}

// GenericGetByField fetches a single document matching a JSONB field value,
// erroring with NotFoundError when no rows match.
func GenericGetByField[T any](ctx context.Context, r *Repository, table, tenantID, field, value string) (*T, error) {
	if value == "" {
		return nil, fmt.Errorf("%s: %s cannot be empty", table, field)
	}
	query := fmt.Sprintf(
		`SELECT data FROM %s WHERE tenant_id = $1 AND data->>'%s' = $2 LIMIT 1`, table, field)

	var data []byte
	err := r.db.QueryRowxContext(ctx, query, tenantID, value).Scan(&data)
	if scanNoRows(err) {
		return nil, NewNotFoundError(table, value)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s by %s: %v", ErrDatabaseError, table, field, err)
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %v", ErrDatabaseError, table, err)
	}
	return &result, nil
}

// GenericUpdate replaces the document at id with model.
func GenericUpdate[T any](ctx context.Context, r *Repository, table, tenantID, id string, model *T) error {
	if model == nil {
		return fmt.Errorf("%s: model cannot be nil", table)
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	data, err := marshalDoc(model)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET data = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`, table)

	res, err := r.db.ExecContext(ctx, query, data, tenantID, id)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrDatabaseError, table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError(table, id)
	}
	return nil
}

// GenericListByField fetches every document matching a JSONB field value.
func GenericListByField[T any](ctx context.Context, r *Repository, table, tenantID, field, value string) ([]T, error) {
	query := fmt.Sprintf(
		`SELECT data FROM %s WHERE tenant_id = $1 AND data->>'%s' = $2 ORDER BY created_at`, table, field)
	return scanDocRows[T](ctx, r.db, query, tenantID, value)
}

// GenericList fetches every document for the tenant.
func GenericList[T any](ctx context.Context, r *Repository, table, tenantID string) ([]T, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE tenant_id = $1 ORDER BY created_at`, table)
	return scanDocRows[T](ctx, r.db, query, tenantID)
}

func scanDocRows[T any](ctx context.Context, db *sqlx.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrDatabaseError, err)
		}
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("%w: unmarshal: %v", ErrDatabaseError, err)
		}
		results = append(results, value)
	}
	return results, rows.Err()
}

// GenericDelete removes a document by id.
func GenericDelete(ctx context.Context, r *Repository, table, tenantID, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND id = $2`, table)
	res, err := r.db.ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrDatabaseError, table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError(table, id)
	}
	return nil
}
