package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestGenericCreateReturnsStoredDocument(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO widgets")).
		WithArgs("w1", "tenant-a", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(`{"name":"gizmo","count":3}`))

	var created widget
	err := GenericCreate(context.Background(), repo, "widgets", "tenant-a", "w1", &widget{Name: "gizmo", Count: 3}, func(w widget) {
		created = w
	})
	if err != nil {
		t.Fatalf("GenericCreate() error = %v", err)
	}
	if created.Name != "gizmo" || created.Count != 3 {
		t.Fatalf("created = %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGenericGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM widgets")).
		WithArgs("tenant-a", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := GenericGetByID[widget](context.Background(), repo, "widgets", "tenant-a", "missing")
	if !IsNotFound(err) {
		t.Fatalf("GenericGetByID() error = %v, want NotFoundError", err)
	}
}

func TestGenericUpdateNoRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE widgets")).
		WithArgs(sqlmock.AnyArg(), "tenant-a", "w1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := GenericUpdate(context.Background(), repo, "widgets", "tenant-a", "w1", &widget{Name: "gizmo"})
	if !IsNotFound(err) {
		t.Fatalf("GenericUpdate() error = %v, want NotFoundError", err)
	}
}

func TestGenericListByField(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM widgets")).
		WithArgs("tenant-a", "gizmo").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow(`{"name":"gizmo","count":1}`).
			AddRow(`{"name":"gizmo","count":2}`))

	got, err := GenericListByField[widget](context.Background(), repo, "widgets", "tenant-a", "name", "gizmo")
	if err != nil {
		t.Fatalf("GenericListByField() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GenericListByField() = %+v, want 2 rows", got)
	}
}

func TestNextCounterValueIncrements(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO transaction_counters")).
		WithArgs("tenant-a", "receipt_no", "0001", 1).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(7)))

	value, err := repo.NextCounterValue(context.Background(), "tenant-a", "receipt_no", "0001", 1)
	if err != nil {
		t.Fatalf("NextCounterValue() error = %v", err)
	}
	if value != 7 {
		t.Fatalf("NextCounterValue() = %d, want 7", value)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
