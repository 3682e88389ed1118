package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/canvas/internal/domain"
)

// objectDoc is the jsonb body of a board object. Its keys match the JSON
// names of domain.Patch so a patch merges with doc || patch.
type objectDoc struct {
	Position  domain.Point              `json:"position"`
	Size      domain.Size               `json:"size"`
	Rotation  float64                   `json:"rotation"`
	ZIndex    int                       `json:"z_index"`
	FrameID   *uuid.UUID                `json:"frame_id"`
	Connector *domain.ConnectorGeometry `json:"connector,omitempty"`
	Text      string                    `json:"text,omitempty"`
	Color     string                    `json:"color,omitempty"`
}

func docOf(o *domain.BoardObject) objectDoc {
	return objectDoc{
		Position:  o.Position,
		Size:      o.Size,
		Rotation:  domain.NormalizeRotation(o.Rotation),
		ZIndex:    o.ZIndex,
		FrameID:   o.FrameID,
		Connector: o.Connector,
		Text:      o.Text,
		Color:     o.Color,
	}
}

// patchDoc renders p as the jsonb fragment merged into doc. A detach
// (FrameID == uuid.Nil) becomes an explicit null.
func patchDoc(p domain.Patch) ([]byte, error) {
	if p.Rotation != nil {
		r := domain.NormalizeRotation(*p.Rotation)
		p.Rotation = &r
	}
	detach := p.FrameID != nil && *p.FrameID == uuid.Nil
	if detach {
		p.FrameID = nil
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if !detach {
		return raw, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["frame_id"] = nil
	return json.Marshal(fields)
}

type ObjectRepo struct {
	pool *pgxpool.Pool
}

func NewObjectRepo(pool *pgxpool.Pool) *ObjectRepo {
	return &ObjectRepo{pool: pool}
}

func (r *ObjectRepo) Create(ctx context.Context, o *domain.BoardObject) error {
	doc, err := json.Marshal(docOf(o))
	if err != nil {
		return fmt.Errorf("objectRepo.Create: marshal doc: %w", err)
	}
	if o.Version < 1 {
		o.Version = 1
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now()
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO board_objects (id, board_id, kind, doc, version, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.BoardID, o.Kind, doc, o.Version, o.UpdatedAt, o.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("objectRepo.Create: %w", err)
	}

	return nil
}

func (r *ObjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error) {
	o, err := scanObject(r.pool.QueryRow(ctx,
		`SELECT id, board_id, kind, doc, version, updated_at, updated_by
		 FROM board_objects WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("objectRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("objectRepo.GetByID: %w", err)
	}

	return o, nil
}

func (r *ObjectRepo) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.BoardObject, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, board_id, kind, doc, version, updated_at, updated_by
		 FROM board_objects WHERE board_id = $1
		 ORDER BY COALESCE((doc->>'z_index')::int, 0), id
		 LIMIT 10000`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("objectRepo.ListByBoard: %w", err)
	}
	defer rows.Close()

	var objects []*domain.BoardObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("objectRepo.ListByBoard: scan: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("objectRepo.ListByBoard: rows: %w", err)
	}

	return objects, nil
}

// Patch merges the fields of p into the stored document. The write always
// wins; the resulting version is above both the stored version and
// expectedVersion.
func (r *ObjectRepo) Patch(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64, actor string) (*domain.BoardObject, error) {
	fragment, err := patchDoc(p)
	if err != nil {
		return nil, fmt.Errorf("objectRepo.Patch: marshal patch: %w", err)
	}

	o, err := scanObject(r.pool.QueryRow(ctx,
		`UPDATE board_objects
		 SET doc = doc || $1::jsonb,
		     version = GREATEST(version, $2) + 1,
		     updated_at = now(),
		     updated_by = $3
		 WHERE id = $4
		 RETURNING id, board_id, kind, doc, version, updated_at, updated_by`,
		fragment, expectedVersion, actor, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("objectRepo.Patch: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("objectRepo.Patch: %w", err)
	}

	return o, nil
}

// Delete removes the object and returns its last stored state.
func (r *ObjectRepo) Delete(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error) {
	o, err := scanObject(r.pool.QueryRow(ctx,
		`DELETE FROM board_objects WHERE id = $1
		 RETURNING id, board_id, kind, doc, version, updated_at, updated_by`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("objectRepo.Delete: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("objectRepo.Delete: %w", err)
	}

	return o, nil
}

func scanObject(row pgx.Row) (*domain.BoardObject, error) {
	var o domain.BoardObject
	var raw []byte

	if err := row.Scan(&o.ID, &o.BoardID, &o.Kind, &raw, &o.Version, &o.UpdatedAt, &o.UpdatedBy); err != nil {
		return nil, err
	}

	var doc objectDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal doc: %w", err)
	}
	o.Position = doc.Position
	o.Size = doc.Size
	o.Rotation = doc.Rotation
	o.ZIndex = doc.ZIndex
	if doc.FrameID != nil && *doc.FrameID != uuid.Nil {
		o.FrameID = doc.FrameID
	}
	o.Connector = doc.Connector
	o.Text = doc.Text
	o.Color = doc.Color

	return &o, nil
}
