package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/llm"
)

const sqlSystemPrompt = `You translate a natural-language request into a single read-only ` +
	`SQL SELECT statement against the named dataset. Respond with only the SQL statement, ` +
	`no commentary.`

// SpreadsheetURLFunc builds a side-effect spreadsheet export URL for a query
// result, e.g. uploading to object storage and returning a signed link.
type SpreadsheetURLFunc func(ctx context.Context, queryID string, columns []string, rows [][]any) (string, error)

// DBQueryAgent translates a natural-language request to SQL, executes it
// read-only, and returns a columnar result plus a spreadsheet export URL.
type DBQueryAgent struct {
	chat    llm.ChatClient
	model   string
	pool    *pgxpool.Pool
	dataset string
	sheet   SpreadsheetURLFunc
}

// NewDBQueryAgent creates a DBQueryAgent against pool, scoped to dataset.
func NewDBQueryAgent(chat llm.ChatClient, model string, pool *pgxpool.Pool, dataset string, sheet SpreadsheetURLFunc) *DBQueryAgent {
	return &DBQueryAgent{chat: chat, model: model, pool: pool, dataset: dataset, sheet: sheet}
}

// Run translates input.Prompt to SQL, executes it inside a read-only
// transaction, and renders the result as a columnar text table.
func (a *DBQueryAgent) Run(ctx context.Context, input Input) (Output, error) {
	messages := []llm.Message{
		{Role: "system", Content: sqlSystemPrompt + " Dataset: " + a.dataset},
		{Role: "user", Content: input.Prompt},
	}
	sql, err := a.chat.Complete(ctx, a.model, messages)
	if err != nil {
		return Output{}, domain.Wrap(domain.CodeLLMUnavailable, err, "translating prompt to SQL")
	}
	sql = strings.TrimSpace(sql)
	if err := requireReadOnlySelect(sql); err != nil {
		return Output{}, err
	}

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return Output{}, domain.Wrap(domain.CodeInternal, err, "beginning read-only transaction")
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return Output{}, domain.Wrap(domain.CodeInternal, err, "executing generated SQL")
	}
	defer rows.Close()

	columns := make([]string, len(rows.FieldDescriptions()))
	for i, fd := range rows.FieldDescriptions() {
		columns[i] = string(fd.Name)
	}

	var result [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return Output{}, domain.Wrap(domain.CodeInternal, err, "scanning row")
		}
		result = append(result, vals)
	}
	if err := rows.Err(); err != nil {
		return Output{}, domain.Wrap(domain.CodeInternal, err, "iterating rows")
	}

	queryID := uuid.NewString()
	var sheetURL string
	if a.sheet != nil {
		sheetURL, err = a.sheet(ctx, queryID, columns, result)
		if err != nil {
			sheetURL = ""
		}
	}

	return Output{Text: renderColumnar(columns, result, sheetURL)}, nil
}

// Capabilities reports the DBQueryAgent's declared capability tags.
func (a *DBQueryAgent) Capabilities() []string { return []string{"dbquery"} }

// Tools returns no declared tools; SQL translation is not a callable tool.
func (a *DBQueryAgent) Tools() []domain.Tool { return nil }

func requireReadOnlySelect(sql string) error {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return domain.New(domain.CodeValidation, "generated statement is not a read-only query")
	}
	for _, forbidden := range []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "GRANT"} {
		if strings.Contains(upper, forbidden) {
			return domain.New(domain.CodeValidation, "generated statement contains forbidden keyword %s", forbidden)
		}
	}
	return nil
}

func renderColumnar(columns []string, rows [][]any, sheetURL string) string {
	var b strings.Builder
	fmt.Fprintln(&b, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(&b, strings.Join(cells, "\t"))
	}
	if sheetURL != "" {
		fmt.Fprintf(&b, "\nSpreadsheet: %s", sheetURL)
	}
	return strings.TrimRight(b.String(), "\n")
}
