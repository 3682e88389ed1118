package session

import (
	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
	"github.com/gosuda/canvas/internal/engine"
)

type CommandType string

const (
	CmdSelect        CommandType = "select"
	CmdDragBegin     CommandType = "drag_begin"
	CmdDragMove      CommandType = "drag_move"
	CmdDragEnd       CommandType = "drag_end"
	CmdResizeBegin   CommandType = "resize_begin"
	CmdResizeMove    CommandType = "resize_move"
	CmdResizeEnd     CommandType = "resize_end"
	CmdRotateBegin   CommandType = "rotate_begin"
	CmdRotateMove    CommandType = "rotate_move"
	CmdRotateEnd     CommandType = "rotate_end"
	CmdRotateStep    CommandType = "rotate_step"
	CmdEndpointBegin CommandType = "endpoint_begin"
	CmdEndpointMove  CommandType = "endpoint_move"
	CmdEndpointEnd   CommandType = "endpoint_end"
	CmdCreate        CommandType = "create"
	CmdUpdate        CommandType = "update"
	CmdDelete        CommandType = "delete"
	CmdUndo          CommandType = "undo"
	CmdRedo          CommandType = "redo"
)

// Command is one message from the client. Which fields are read depends on
// Type.
type Command struct {
	Type CommandType `json:"type"`
	// Seq is echoed in the reply so the client can match it.
	Seq int64 `json:"seq,omitempty"`

	ID        uuid.UUID           `json:"id,omitempty"`
	IDs       []uuid.UUID         `json:"ids,omitempty"`
	Point     *domain.Point       `json:"point,omitempty"`
	Rect      *domain.Rect        `json:"rect,omitempty"`
	End       engine.ConnectorEnd `json:"end,omitempty"`
	Binding   *engine.Binding     `json:"binding,omitempty"`
	Direction int                 `json:"direction,omitempty"`
	Object    *domain.BoardObject `json:"object,omitempty"`
	Patch     *domain.Patch       `json:"patch,omitempty"`
	Label     string              `json:"label,omitempty"`
}

type MessageType string

const (
	MsgView  MessageType = "view"
	MsgAck   MessageType = "ack"
	MsgError MessageType = "error"
)

// Message is one message to the client.
type Message struct {
	Type MessageType `json:"type"`
	Seq  int64       `json:"seq,omitempty"`

	Objects   []domain.BoardObject `json:"objects,omitempty"`
	Selection []uuid.UUID          `json:"selection,omitempty"`
	CanUndo   bool                 `json:"can_undo,omitempty"`
	CanRedo   bool                 `json:"can_redo,omitempty"`

	// Created is set on the ack of a create command.
	Created *domain.BoardObject `json:"created,omitempty"`
	Error   string              `json:"error,omitempty"`
}
