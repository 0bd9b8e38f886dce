package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveledo/examflow/internal/store"
)

func pgError(code string) *pgconn.PgError {
	return &pgconn.PgError{Code: code, ConstraintName: "sheets_exam_id_content_hash_key"}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil stays nil", err: nil, want: nil},
		{name: "no rows maps to not found", err: sql.ErrNoRows, want: store.ErrNotFound},
		{name: "unique violation maps to duplicate", err: pgError(uniqueViolationCode), want: store.ErrDuplicate},
		{name: "foreign key maps to invalid entity", err: pgError(foreignKeyViolationCode), want: store.ErrInvalidEntity},
		{name: "check constraint maps to invalid entity", err: pgError(checkViolationCode), want: store.ErrInvalidEntity},
		{name: "not null maps to invalid entity", err: pgError(notNullViolationCode), want: store.ErrInvalidEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	t.Run("unmapped errors pass through", func(t *testing.T) {
		original := errors.New("connection reset")
		assert.Equal(t, original, MapError(original))
	})

	t.Run("wrapped pg errors are still recognized", func(t *testing.T) {
		wrapped := fmt.Errorf("inserting sheet: %w", pgError(uniqueViolationCode))
		assert.ErrorIs(t, MapError(wrapped), store.ErrDuplicate)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(pgError(uniqueViolationCode)))
	assert.False(t, IsUniqueViolation(pgError(foreignKeyViolationCode)))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(sql.ErrNoRows))
	assert.True(t, IsNotFoundError(store.ErrSheetNotFound))
	assert.False(t, IsNotFoundError(errors.New("other")))
}

func TestMarshalIssues(t *testing.T) {
	t.Run("nil becomes empty array", func(t *testing.T) {
		data, err := marshalIssues(nil)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})

	t.Run("issues round-trip", func(t *testing.T) {
		data, err := marshalIssues([]string{"low_confidence", "insufficient_text"})
		require.NoError(t, err)
		assert.JSONEq(t, `["low_confidence","insufficient_text"]`, string(data))
	})
}
