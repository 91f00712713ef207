package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	intconfig "rentals/internal/config"
	"rentals/internal/utils"

	"go.uber.org/zap"
)

// conn falls back to the shared connection when a repository is built without one.
func conn(db *sql.DB) *sql.DB {
	if db != nil {
		return db
	}
	return intconfig.DB
}

// decodeColumn unmarshals a JSON column. A corrupt value is logged and leaves dst untouched.
func decodeColumn(ctx context.Context, table, column, id, raw string, dst any) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		utils.LogWarn(ctx, "repository", "decode", "corrupt json column", err,
			zap.String("table", table), zap.String("column", column), zap.String("id", id))
	}
}

// setClause accumulates "col = ?" fragments for partial updates.
type setClause struct {
	cols []string
	args []any
}

func (s *setClause) add(col string, val any) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, val)
}

func (s *setClause) raw(expr string) {
	s.cols = append(s.cols, expr)
}

func (s *setClause) empty() bool { return len(s.cols) == 0 }
