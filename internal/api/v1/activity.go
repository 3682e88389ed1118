package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
)

type ListActivityInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
	Limit   int       `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
	Offset  int       `query:"offset" default:"0" minimum:"0" doc:"Entries to skip"`
}

type ListActivityOutput struct {
	Body []*domain.ActivityEntry
}

func RegisterActivityRoutes(api huma.API, activity ActivityLog) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}/activity",
		Summary:     "List recent edits on a board, newest first",
		Tags:        []string{"Activity"},
	}, func(ctx context.Context, input *ListActivityInput) (*ListActivityOutput, error) {
		entries, err := activity.ListByBoard(ctx, input.BoardID, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list activity", err)
		}
		if entries == nil {
			entries = make([]*domain.ActivityEntry, 0)
		}
		return &ListActivityOutput{Body: entries}, nil
	})
}
