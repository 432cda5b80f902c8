package translate

import (
	"context"
	"log/slog"

	"github.com/datasage-io/datasage/internal/dataset"
)

// RemoteTranslator is the primary translation strategy. Its single method may
// fail for any reason; the chain treats every failure identically.
type RemoteTranslator interface {
	Translate(ctx context.Context, question string, table string, schema []dataset.Column) (string, error)
	Configured() bool
}

// Translator chains the remote model path with the rule-based matcher. The
// matcher is total, so translation as a whole never fails.
type Translator struct {
	remote RemoteTranslator
	rules  *Rules
	table  string
}

// New creates a Translator over the given remote strategy. remote may be nil
// to run rules-only.
func New(remote RemoteTranslator) *Translator {
	return &Translator{
		remote: remote,
		rules:  NewRules(TableName),
		table:  TableName,
	}
}

// Table returns the table name generated queries reference.
func (t *Translator) Table() string { return t.table }

// Translate converts the request to SQL. The remote path is attempted only
// when useRemote is set and a credential is configured; on any remote failure
// the rule-based result is returned instead, with the reason logged but not
// surfaced. remoteUsed reports which strategy produced the query.
func (t *Translator) Translate(ctx context.Context, question string, schema []dataset.Column, useRemote bool) (sql string, remoteUsed bool) {
	if useRemote && t.remote != nil && t.remote.Configured() {
		sql, err := t.remote.Translate(ctx, question, t.table, schema)
		if err == nil {
			return sql, true
		}
		slog.Warn("remote translation failed, using rule-based matcher", "error", err)
	} else if useRemote {
		slog.Warn("remote translation unavailable, using rule-based matcher", "reason", "no credential configured")
	}

	return t.rules.Translate(question, schema), false
}
