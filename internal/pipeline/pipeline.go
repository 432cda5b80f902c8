package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/history"
	"github.com/datasage-io/datasage/internal/query"
	"github.com/datasage-io/datasage/internal/session"
	"github.com/datasage-io/datasage/internal/translate"
)

// NLResult pairs the generated query text with its execution result.
type NLResult struct {
	Question   string        `json:"natural_language"`
	SQL        string        `json:"sql"`
	RemoteUsed bool          `json:"remote_used"`
	Result     *query.Result `json:"results"`
}

// Pipeline composes the session store, codec, translator and executor for a
// single request. Each execution gets its own engine instance; the executor
// guarantees teardown.
type Pipeline struct {
	store      *session.Store
	translator *translate.Translator
	exec       *query.Executor
	history    *history.Store // optional; nil disables the query log
}

// New wires a Pipeline. hist may be nil.
func New(store *session.Store, translator *translate.Translator, exec *query.Executor, hist *history.Store) *Pipeline {
	return &Pipeline{
		store:      store,
		translator: translator,
		exec:       exec,
		history:    hist,
	}
}

// Schema resolves the session's dataset and returns its engine-facing schema:
// sanitized column names with their relational types.
func (p *Pipeline) Schema(ctx context.Context, sessionID string) ([]dataset.Column, error) {
	frame, _, err := p.dataset(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return frame.Schema(), nil
}

// Translate converts a natural-language request into query text for the
// session's dataset without executing it.
func (p *Pipeline) Translate(ctx context.Context, sessionID, question string, useRemote bool) (string, error) {
	frame, _, err := p.dataset(ctx, sessionID)
	if err != nil {
		return "", err
	}
	sql, _ := p.translator.Translate(ctx, question, frame.Schema(), useRemote)
	return sql, nil
}

// ExecuteSQL runs literal query text against the session's dataset.
func (p *Pipeline) ExecuteSQL(ctx context.Context, sessionID, queryText string) (*query.Result, error) {
	frame, _, err := p.dataset(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, execErr := p.exec.Execute(ctx, frame, queryText)
	p.record(sessionID, "", queryText, result, time.Since(start), execErr)
	return result, execErr
}

// RunNaturalLanguage translates the request and executes the resulting query
// in one pass. Translation itself cannot fail: the rule-based matcher always
// yields valid query text.
func (p *Pipeline) RunNaturalLanguage(ctx context.Context, sessionID, question string, useRemote bool) (*NLResult, error) {
	frame, _, err := p.dataset(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sql, remoteUsed := p.translator.Translate(ctx, question, frame.Schema(), useRemote)

	start := time.Now()
	result, execErr := p.exec.Execute(ctx, frame, sql)
	p.record(sessionID, question, sql, result, time.Since(start), execErr)
	if execErr != nil {
		return nil, execErr
	}

	return &NLResult{
		Question:   question,
		SQL:        sql,
		RemoteUsed: remoteUsed,
		Result:     result,
	}, nil
}

// dataset resolves the session to its frame, logging when the load came from
// the re-inferred text tier.
func (p *Pipeline) dataset(ctx context.Context, sessionID string) (*dataset.Frame, bool, error) {
	frame, reinferred, err := p.store.Dataset(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if reinferred {
		slog.Warn("dataset loaded from text snapshot, column types re-inferred",
			"session_id", sessionID)
	}
	return frame, reinferred, nil
}

// record appends to the query log. History failures are logged, never
// surfaced to the query caller.
func (p *Pipeline) record(sessionID, question, sql string, result *query.Result, elapsed time.Duration, execErr error) {
	if p.history == nil {
		return
	}
	entry := history.Entry{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		CreatedAt:  time.Now().UTC(),
		Question:   question,
		SQL:        sql,
		DurationMs: elapsed.Milliseconds(),
		Status:     "completed",
	}
	if result != nil {
		entry.RowCount = result.RowCount
	}
	if execErr != nil {
		entry.Status = "failed"
		entry.Error = execErr.Error()
	}
	if err := p.history.SaveQuery(entry); err != nil {
		slog.Warn("failed to record query history", "session_id", sessionID, "error", err)
	}
}
