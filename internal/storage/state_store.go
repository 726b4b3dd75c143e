// Package storage persists WorkflowState with optimistic versioning
// (§4.4, §7 conflict errors), using the same bun/Postgres stack the
// teacher codebase uses for its own durable state.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	_ "modernc.org/sqlite"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// StateModel is the persisted row for a WorkflowState. The state itself
// is stored as a single jsonb blob — the engine already owns its
// internal shape and invariants, so this is storage, not a second schema.
type StateModel struct {
	bun.BaseModel `bun:"table:workflow_states,alias:ws"`

	PresentationID string `bun:"presentation_id,pk"`
	Version        int64  `bun:"version"`
	StateJSON      []byte `bun:"state_json,type:jsonb"`
}

// StateStore persists and retrieves WorkflowState by presentation_id.
type StateStore struct {
	db *bun.DB
}

// NewStateStore opens a bun/pgdriver connection to dsn.
func NewStateStore(dsn string) *StateStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &StateStore{db: db}
}

// NewStateStoreWithDB wraps an already-open bun.DB (tests, alternate dialects).
func NewStateStoreWithDB(db *bun.DB) *StateStore {
	return &StateStore{db: db}
}

// NewSQLiteStateStore opens a file-backed sqlite database at path — the
// zero-config fallback used when no Postgres DSN is configured, so a
// single-process deployment still gets durable state without Postgres.
func NewSQLiteStateStore(path string) (*StateStore, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite state store: %w", err)
	}
	return &StateStore{db: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

// InitSchema creates the workflow_states table if absent.
func (s *StateStore) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*StateModel)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("storage: init schema: %w", err)
	}
	return nil
}

// serializableState mirrors the exported fields of domain.WorkflowState
// (which carries an unexported mutex and is therefore not itself
// json.Marshal-safe as a pointer receiver method) for round-tripping.
type serializableState struct {
	PresentationID string                      `json:"presentation_id"`
	Version        int64                       `json:"version"`
	History        []domain.HistoryTurn        `json:"history"`
	Clarify        domain.ClarifyResult        `json:"clarify"`
	Outline        domain.Outline              `json:"outline"`
	Slides         []domain.Slide              `json:"slides"`
	Script         string                      `json:"script,omitempty"`
	RAG            domain.RAGCache             `json:"rag"`
	Research       domain.Research             `json:"research"`
	Metadata       map[string]any              `json:"metadata"`
	Quality        domain.WorkflowQualityState `json:"quality_state"`
}

func toSerializable(s *domain.WorkflowState) serializableState {
	return serializableState{
		PresentationID: s.PresentationID,
		Version:        s.Version,
		History:        s.History,
		Clarify:        s.Clarify,
		Outline:        s.Outline,
		Slides:         s.Slides,
		Script:         s.Script,
		RAG:            s.RAG,
		Research:       s.Research,
		Metadata:       s.Metadata,
		Quality:        s.Quality,
	}
}

func fromSerializable(raw serializableState) *domain.WorkflowState {
	state := domain.NewWorkflowState(raw.PresentationID)
	state.Version = raw.Version
	state.History = raw.History
	state.Clarify = raw.Clarify
	state.Outline = raw.Outline
	state.Slides = raw.Slides
	state.Script = raw.Script
	state.RAG = raw.RAG
	if state.RAG.Sections == nil {
		state.RAG.Sections = make(map[string]domain.SectionRAG)
	}
	state.Research = raw.Research
	if raw.Metadata != nil {
		state.Metadata = raw.Metadata
	}
	state.Quality = raw.Quality
	return state
}

// Get loads the WorkflowState for presentationID, or a freshly-initialized
// one (version 0) if no row exists yet — a new presentation_id is not an
// error (§4.4 "presentation_id lookup/creation").
func (s *StateStore) Get(ctx context.Context, presentationID string) (*domain.WorkflowState, error) {
	model := new(StateModel)
	err := s.db.NewSelect().Model(model).Where("presentation_id = ?", presentationID).Scan(ctx)
	if err == sql.ErrNoRows {
		return domain.NewWorkflowState(presentationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get state: %w", err)
	}

	var raw serializableState
	if err := json.Unmarshal(model.StateJSON, &raw); err != nil {
		return nil, fmt.Errorf("storage: decode state: %w", err)
	}
	return fromSerializable(raw), nil
}

// Commit persists state under optimistic concurrency: the write only
// succeeds if the stored version still matches expectedVersion, the
// version the caller read state from. A mismatch returns
// *apperr.ConflictError without writing anything (§4.4, §7).
func (s *StateStore) Commit(ctx context.Context, state *domain.WorkflowState, expectedVersion int64) error {
	payload, err := json.Marshal(toSerializable(state))
	if err != nil {
		return fmt.Errorf("storage: encode state: %w", err)
	}

	model := &StateModel{
		PresentationID: state.PresentationID,
		Version:        state.Version,
		StateJSON:      payload,
	}

	if expectedVersion == 0 {
		res, err := s.db.NewInsert().
			Model(model).
			On("CONFLICT (presentation_id) DO UPDATE").
			Set("version = EXCLUDED.version, state_json = EXCLUDED.state_json").
			Where("workflow_states.version = ?", expectedVersion).
			Exec(ctx)
		return s.checkCommitResult(ctx, res, err, state.PresentationID, expectedVersion)
	}

	res, err := s.db.NewUpdate().
		Model(model).
		Column("version", "state_json").
		Where("presentation_id = ?", state.PresentationID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	return s.checkCommitResult(ctx, res, err, state.PresentationID, expectedVersion)
}

func (s *StateStore) checkCommitResult(ctx context.Context, res sql.Result, err error, presentationID string, expectedVersion int64) error {
	if err != nil {
		return fmt.Errorf("storage: commit state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: commit state: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, getErr := s.Get(ctx, presentationID)
	actual := expectedVersion
	if getErr == nil {
		actual = current.Version
	}
	return apperr.Conflict(presentationID, expectedVersion, actual)
}

// Close releases the underlying connection pool.
func (s *StateStore) Close() error {
	return s.db.Close()
}
