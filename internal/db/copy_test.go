package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "evidence", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"enrich", "evidence"}, []string{"ticket_id", "rank"}).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "enrich.evidence", []string{"ticket_id", "rank"}, [][]any{{"T1", 1}, {"T1", 2}})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"evidence"}, []string{"a"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "evidence", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO evidence")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableIdent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"dataset", `"dataset"`},
		{"crm.accounts", `"crm"."accounts"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, TableIdent(tt.input).Sanitize())
		})
	}
}

func TestUpdateByKey(t *testing.T) {
	sql, args, err := UpdateByKey("dataset", "BRIZO_ID", "abc", map[string]any{
		"WEBSITE":       "https://cafe.example",
		"BUSINESS_NAME": "Cafe",
	})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "dataset" SET "BUSINESS_NAME" = $1, "WEBSITE" = $2 WHERE "BRIZO_ID" = $3`, sql)
	assert.Equal(t, []any{"Cafe", "https://cafe.example", "abc"}, args)

	_, _, err = UpdateByKey("dataset", "BRIZO_ID", "abc", nil)
	require.Error(t, err)
}
