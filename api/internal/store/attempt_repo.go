package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"captcha-solver/api/internal/retry"
)

const schema = `
create table if not exists captcha_attempts (
    id          bigserial primary key,
    created_at  timestamptz not null default now(),
    attempt_id  text        not null,
    attempt_no  int         not null,
    source      text        not null default '',
    answer      text        not null default '',
    solved      boolean     not null,
    rule        text        not null,
    state       text        not null,
    error       text        not null default '',
    duration_ms bigint      not null,
    candidates  jsonb       not null,
    failures    jsonb       not null
);
create index if not exists captcha_attempts_created_at_idx on captcha_attempts (created_at);
`

// AttemptRepo: журнал попыток решения капчи.
type AttemptRepo struct{ DB *sql.DB }

func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{DB: db} }

func (r *AttemptRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordAttempt implements retry.Recorder.
func (r *AttemptRepo) RecordAttempt(ctx context.Context, a retry.Attempt) error {
	cands, err := json.Marshal(a.Decision.Candidates)
	if err != nil {
		return err
	}
	fails, err := json.Marshal(a.Decision.Failures)
	if err != nil {
		return err
	}
	const q = `
insert into captcha_attempts
    (attempt_id, attempt_no, source, answer, solved, rule, state, error, duration_ms, candidates, failures)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.DB.ExecContext(ctx, q,
		a.Decision.AttemptID, a.N, a.Source, a.Decision.Answer, a.Decision.Solved,
		string(a.Decision.Rule), string(a.State), a.Err, a.Duration.Milliseconds(),
		string(cands), string(fails),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Stats: сводка по попыткам начиная с since.
type Stats struct {
	Total    int64
	Solved   int64
	Accepted int64
}

func (r *AttemptRepo) Stats(ctx context.Context, since time.Time) (Stats, error) {
	const q = `
select count(*),
       count(*) filter (where solved),
       count(*) filter (where state = $2)
from captcha_attempts
where created_at >= $1`
	var s Stats
	if err := r.DB.QueryRowContext(ctx, q, since, string(retry.StateAccepted)).Scan(&s.Total, &s.Solved, &s.Accepted); err != nil {
		return Stats{}, err
	}
	return s, nil
}
