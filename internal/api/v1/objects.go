package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/canvas/internal/domain"
	"github.com/gosuda/canvas/internal/server/middleware"
)

type ListObjectsInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
}

type ListObjectsOutput struct {
	Body []domain.BoardObject
}

type GetObjectInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
	ID      uuid.UUID `path:"id" doc:"Object ID"`
}

type GetObjectOutput struct {
	Body *domain.BoardObject
}

type CreateObjectInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
	Body    struct {
		Kind      domain.ObjectKind         `json:"kind" enum:"sticky_note,shape,frame,connector,text" doc:"Object kind"`
		Position  domain.Point              `json:"position,omitempty" doc:"Top-left corner"`
		Size      domain.Size               `json:"size,omitempty" doc:"Width and height"`
		Rotation  float64                   `json:"rotation,omitempty" doc:"Clockwise rotation in degrees"`
		ZIndex    int                       `json:"z_index,omitempty" doc:"Paint order"`
		FrameID   *uuid.UUID                `json:"frame_id,omitempty" doc:"Enclosing frame"`
		Connector *domain.ConnectorGeometry `json:"connector,omitempty" doc:"Endpoints, required for connectors"`
		Text      string                    `json:"text,omitempty" maxLength:"10000" doc:"Text content"`
		Color     string                    `json:"color,omitempty" maxLength:"32" doc:"Fill color"`
	}
}

type CreateObjectOutput struct {
	Body *domain.BoardObject
}

type PatchObjectInput struct {
	BoardID         uuid.UUID `path:"boardID" doc:"Board ID"`
	ID              uuid.UUID `path:"id" doc:"Object ID"`
	ExpectedVersion int64     `query:"expected_version" minimum:"0" doc:"Version the edit was based on; the new version is always greater"`
	Body            domain.Patch
}

type PatchObjectOutput struct {
	Body *domain.BoardObject
}

type DeleteObjectInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
	ID      uuid.UUID `path:"id" doc:"Object ID"`
}

// RegisterObjectRoutes mounts board object CRUD. activity may be nil.
// Every write goes through the document store, so open sessions reload.
func RegisterObjectRoutes(api huma.API, objects ObjectService, activity ActivityLog) {
	huma.Register(api, huma.Operation{
		OperationID: "list-objects",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}/objects",
		Summary:     "List the objects on a board",
		Tags:        []string{"Objects"},
	}, func(ctx context.Context, input *ListObjectsInput) (*ListObjectsOutput, error) {
		objs, err := objects.List(ctx, input.BoardID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list objects", err)
		}
		return &ListObjectsOutput{Body: objs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-object",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}/objects/{id}",
		Summary:     "Get a board object",
		Tags:        []string{"Objects"},
	}, func(ctx context.Context, input *GetObjectInput) (*GetObjectOutput, error) {
		o, err := lookup(ctx, objects, input.BoardID, input.ID)
		if err != nil {
			return nil, err
		}
		return &GetObjectOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-object",
		Method:      http.MethodPost,
		Path:        "/boards/{boardID}/objects",
		Summary:     "Create a board object",
		Tags:        []string{"Objects"},
	}, func(ctx context.Context, input *CreateObjectInput) (*CreateObjectOutput, error) {
		actor, ok := middleware.ActorFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing actor")
		}

		b := input.Body
		o, err := domain.NewObject(input.BoardID, b.Kind, domain.Rect{Position: b.Position, Size: b.Size})
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if b.Connector != nil && b.Kind == domain.KindConnector {
			g := b.Connector.Clone()
			o.Connector = &g
		}
		o.Rotation = domain.NormalizeRotation(b.Rotation)
		o.ZIndex = b.ZIndex
		o.FrameID = b.FrameID
		o.Text = b.Text
		o.Color = b.Color
		o.UpdatedAt = time.Now()

		if err := objects.Create(ctx, o, actor); err != nil {
			if errors.Is(err, domain.ErrInvalidObject) {
				return nil, huma.Error422UnprocessableEntity(err.Error())
			}
			return nil, huma.Error500InternalServerError("failed to create object", err)
		}

		record(ctx, activity, o.BoardID, actor, domain.ActivityCreate, "Create", o.ID, nil)
		return &CreateObjectOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-object",
		Method:      http.MethodPatch,
		Path:        "/boards/{boardID}/objects/{id}",
		Summary:     "Update fields of a board object",
		Description: "Changed fields are merged last-write-wins. A frame_id of the nil UUID detaches the object from its frame.",
		Tags:        []string{"Objects"},
	}, func(ctx context.Context, input *PatchObjectInput) (*PatchObjectOutput, error) {
		actor, ok := middleware.ActorFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing actor")
		}
		current, err := lookup(ctx, objects, input.BoardID, input.ID)
		if err != nil {
			return nil, err
		}

		o, err := objects.Patch(ctx, input.ID, input.Body, input.ExpectedVersion, actor)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("object not found")
			}
			return nil, huma.Error500InternalServerError("failed to update object", err)
		}

		if input.Body.Changes(*current) {
			record(ctx, activity, input.BoardID, actor, domain.ActivityUpdate, "Edit", o.ID, map[string]any{"fields": input.Body.Fields()})
		}
		return &PatchObjectOutput{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-object",
		Method:      http.MethodDelete,
		Path:        "/boards/{boardID}/objects/{id}",
		Summary:     "Delete a board object",
		Tags:        []string{"Objects"},
	}, func(ctx context.Context, input *DeleteObjectInput) (*struct{}, error) {
		actor, ok := middleware.ActorFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing actor")
		}
		if _, err := lookup(ctx, objects, input.BoardID, input.ID); err != nil {
			return nil, err
		}

		if _, err := objects.Delete(ctx, input.ID, actor); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("object not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete object", err)
		}

		record(ctx, activity, input.BoardID, actor, domain.ActivityDelete, "Delete", input.ID, nil)
		return nil, nil
	})
}

// lookup loads an object and checks that it lives on boardID.
func lookup(ctx context.Context, objects ObjectService, boardID, id uuid.UUID) (*domain.BoardObject, error) {
	o, err := objects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("object not found")
		}
		return nil, huma.Error500InternalServerError("failed to get object", err)
	}
	if o.BoardID != boardID {
		return nil, huma.Error404NotFound("object not found")
	}
	return o, nil
}

// record appends to the activity log. A failure does not fail the request.
func record(ctx context.Context, activity ActivityLog, boardID uuid.UUID, actor string, action domain.ActivityAction, label string, objectID uuid.UUID, details map[string]any) {
	if activity == nil {
		return
	}
	entry := &domain.ActivityEntry{
		ID:        uuid.New(),
		BoardID:   boardID,
		Actor:     actor,
		Action:    action,
		Label:     label,
		ObjectIDs: []uuid.UUID{objectID},
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := activity.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("board_id", boardID.String()).Msg("v1.record: failed to record activity")
	}
}
