package builtin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quarrylabs/warden/guard"
)

// DatabaseTool runs SQL against a local SQLite database. Read queries
// run directly; mutating statements are critical-tier and require
// explicit approval before they execute.
type DatabaseTool struct {
	DB      *sql.DB
	MaxRows int
}

func NewDatabaseTool(db *sql.DB, maxRows int) *DatabaseTool {
	if maxRows <= 0 {
		maxRows = 200
	}
	return &DatabaseTool{DB: db, MaxRows: maxRows}
}

func (t *DatabaseTool) Name() string { return "database_operation" }

func (t *DatabaseTool) Description() string {
	return "Runs a SQL statement against the local database. Mutations require explicit approval."
}

func (t *DatabaseTool) Tier() guard.PermissionTier { return guard.TierCritical }

func (t *DatabaseTool) ParameterSchema() string {
	return schemaJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type":        "string",
				"description": "SQL statement to run.",
			},
			"operation": map[string]any{
				"type":        "string",
				"description": "Operation kind: query|exec|delete|drop|truncate. Inferred from the statement when omitted.",
			},
			"environment": map[string]any{
				"type":        "string",
				"description": "Target environment label (e.g. development, staging, production).",
			},
		},
		"required": []string{"sql"},
	})
}

func (t *DatabaseTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if t.DB == nil {
		return "", fmt.Errorf("database_operation tool has no database configured")
	}
	stmt := paramString(params, "sql")
	if stmt == "" {
		return "", fmt.Errorf("missing required param: sql")
	}

	op := strings.ToLower(paramString(params, "operation"))
	if op == "" {
		op = inferSQLOperation(stmt)
	}

	if op != "query" && !paramBool(params, "explicitly_approved") {
		return "", fmt.Errorf("%s%s: %s statement on database", guard.ApprovalRequiredPrefix, guard.TierCritical, op)
	}

	if op == "query" {
		return t.query(ctx, stmt)
	}

	res, err := t.DB.ExecContext(ctx, stmt)
	if err != nil {
		return "", fmt.Errorf("exec failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	out, _ := json.Marshal(map[string]any{"operation": op, "rows_affected": affected})
	return string(out), nil
}

func (t *DatabaseTool) query(ctx context.Context, stmt string) (string, error) {
	rows, err := t.DB.QueryContext(ctx, stmt)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var results []map[string]any
	for rows.Next() {
		if len(results) >= t.MaxRows {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	out, _ := json.MarshalIndent(map[string]any{"rows": results, "count": len(results)}, "", "  ")
	return string(out), nil
}

func inferSQLOperation(stmt string) string {
	head := strings.ToLower(strings.TrimSpace(stmt))
	switch {
	case strings.HasPrefix(head, "select"), strings.HasPrefix(head, "pragma"), strings.HasPrefix(head, "explain"):
		return "query"
	case strings.HasPrefix(head, "delete"):
		return "delete"
	case strings.HasPrefix(head, "drop"):
		return "drop"
	case strings.HasPrefix(head, "truncate"):
		return "truncate"
	default:
		return "exec"
	}
}
