package domain

import (
	"github.com/google/uuid"
)

// Patch is a partial update of a BoardObject. A nil field is left unchanged.
// FrameID set to uuid.Nil detaches the object from its frame.
type Patch struct {
	Position  *Point             `json:"position,omitempty"`
	Size      *Size              `json:"size,omitempty"`
	Rotation  *float64           `json:"rotation,omitempty"`
	ZIndex    *int               `json:"z_index,omitempty"`
	FrameID   *uuid.UUID         `json:"frame_id,omitempty"`
	Connector *ConnectorGeometry `json:"connector,omitempty"`
	Text      *string            `json:"text,omitempty"`
	Color     *string            `json:"color,omitempty"`
}

func (p Patch) IsEmpty() bool {
	return p.Position == nil && p.Size == nil && p.Rotation == nil && p.ZIndex == nil &&
		p.FrameID == nil && p.Connector == nil && p.Text == nil && p.Color == nil
}

// Fields lists the names of the fields present in p.
func (p Patch) Fields() []string {
	var out []string
	if p.Position != nil {
		out = append(out, "position")
	}
	if p.Size != nil {
		out = append(out, "size")
	}
	if p.Rotation != nil {
		out = append(out, "rotation")
	}
	if p.ZIndex != nil {
		out = append(out, "z_index")
	}
	if p.FrameID != nil {
		out = append(out, "frame_id")
	}
	if p.Connector != nil {
		out = append(out, "connector")
	}
	if p.Text != nil {
		out = append(out, "text")
	}
	if p.Color != nil {
		out = append(out, "color")
	}
	return out
}

// Apply returns a copy of o with the fields of p written over it.
func (p Patch) Apply(o BoardObject) BoardObject {
	o = o.Clone()
	if p.Position != nil {
		o.Position = *p.Position
	}
	if p.Size != nil {
		o.Size = *p.Size
	}
	if p.Rotation != nil {
		o.Rotation = NormalizeRotation(*p.Rotation)
	}
	if p.ZIndex != nil {
		o.ZIndex = *p.ZIndex
	}
	if p.FrameID != nil {
		if *p.FrameID == uuid.Nil {
			o.FrameID = nil
		} else {
			o.FrameID = cloneID(p.FrameID)
		}
	}
	if p.Connector != nil {
		g := p.Connector.Clone()
		o.Connector = &g
	}
	if p.Text != nil {
		o.Text = *p.Text
	}
	if p.Color != nil {
		o.Color = *p.Color
	}
	return o
}

// Capture reads from o the current value of every field present in p. The
// result is the patch that undoes p when applied after it.
func (p Patch) Capture(o BoardObject) Patch {
	var out Patch
	if p.Position != nil {
		v := o.Position
		out.Position = &v
	}
	if p.Size != nil {
		v := o.Size
		out.Size = &v
	}
	if p.Rotation != nil {
		v := o.Rotation
		out.Rotation = &v
	}
	if p.ZIndex != nil {
		v := o.ZIndex
		out.ZIndex = &v
	}
	if p.FrameID != nil {
		v := uuid.Nil
		if o.FrameID != nil {
			v = *o.FrameID
		}
		out.FrameID = &v
	}
	if p.Connector != nil && o.Connector != nil {
		g := o.Connector.Clone()
		out.Connector = &g
	}
	if p.Text != nil {
		v := o.Text
		out.Text = &v
	}
	if p.Color != nil {
		v := o.Color
		out.Color = &v
	}
	return out
}

// Changes reports whether applying p to o would alter any field.
func (p Patch) Changes(o BoardObject) bool {
	switch {
	case p.Position != nil && *p.Position != o.Position:
		return true
	case p.Size != nil && *p.Size != o.Size:
		return true
	case p.Rotation != nil && NormalizeRotation(*p.Rotation) != o.Rotation:
		return true
	case p.ZIndex != nil && *p.ZIndex != o.ZIndex:
		return true
	case p.FrameID != nil && !sameFrame(*p.FrameID, o.FrameID):
		return true
	case p.Connector != nil && (o.Connector == nil || !p.Connector.Matches(*o.Connector, 0)):
		return true
	case p.Text != nil && *p.Text != o.Text:
		return true
	case p.Color != nil && *p.Color != o.Color:
		return true
	}
	return false
}

func sameFrame(id uuid.UUID, current *uuid.UUID) bool {
	if current == nil {
		return id == uuid.Nil
	}
	return id == *current
}
