package postgres

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/canvas/internal/domain"
)

func TestPatchDoc(t *testing.T) {
	t.Parallel()

	frameID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	nilID := uuid.Nil
	pos := domain.Point{X: 10, Y: 20}
	rot := -90.0
	text := "todo"

	tests := []struct {
		name  string
		patch domain.Patch
		want  map[string]any
	}{
		{
			name:  "position only",
			patch: domain.Patch{Position: &pos},
			want:  map[string]any{"position": map[string]any{"x": 10.0, "y": 20.0}},
		},
		{
			name:  "rotation is normalized",
			patch: domain.Patch{Rotation: &rot},
			want:  map[string]any{"rotation": 270.0},
		},
		{
			name:  "attach to frame",
			patch: domain.Patch{FrameID: &frameID},
			want:  map[string]any{"frame_id": frameID.String()},
		},
		{
			name:  "detach becomes null",
			patch: domain.Patch{FrameID: &nilID, Text: &text},
			want:  map[string]any{"frame_id": nil, "text": "todo"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			raw, err := patchDoc(tc.patch)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPatchDoc_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	nilID := uuid.Nil
	rot := 450.0
	p := domain.Patch{FrameID: &nilID, Rotation: &rot}

	_, err := patchDoc(p)
	require.NoError(t, err)
	require.NotNil(t, p.FrameID)
	assert.Equal(t, uuid.Nil, *p.FrameID)
	assert.InDelta(t, 450.0, *p.Rotation, 1e-9)
}

func TestDocOf(t *testing.T) {
	t.Parallel()

	frameID := uuid.New()
	o := &domain.BoardObject{
		ID:       uuid.New(),
		BoardID:  uuid.New(),
		Kind:     domain.KindShape,
		Position: domain.Point{X: 1, Y: 2},
		Size:     domain.Size{Width: 3, Height: 4},
		Rotation: 370,
		ZIndex:   7,
		FrameID:  &frameID,
		Color:    "#ff0000",
	}

	doc := docOf(o)
	assert.InDelta(t, 10.0, doc.Rotation, 1e-9)
	assert.Equal(t, 7, doc.ZIndex)
	assert.Equal(t, &frameID, doc.FrameID)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "connector")
	assert.Contains(t, string(raw), `"z_index":7`)
}
