package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MySQL's utf8mb4 default collation folds case; dedup and opening keys must not.
func TestMySQLSchema_KeyColumnsCompareBinary(t *testing.T) {
	ddl := strings.Join(mysqlSchema, "\n")
	for _, col := range []string{"opponent_name", "time_control", "opening_name", "opening_eco"} {
		re := regexp.MustCompile(`(?m)^\s*` + col + `\s+VARCHAR\(\d+\)(.*)$`)
		matches := re.FindAllStringSubmatch(ddl, -1)
		if assert.NotEmpty(t, matches, col) {
			for _, m := range matches {
				assert.Contains(t, m[1], "COLLATE utf8mb4_bin", col)
			}
		}
	}
}

func TestInsertMatch_OpponentCaseIsDistinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPlayer(t, s, "nour", nil)

	inserted, err := s.InsertMatch(ctx, newMatch(p.ID, "Karim", "2024-03-15", "600"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertMatch(ctx, newMatch(p.ID, "karim", "2024-03-15", "600"))
	require.NoError(t, err)
	assert.True(t, inserted)
}
