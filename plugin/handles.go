package plugin

import "context"

// Inspector addresses the inspector window an event came from.
type Inspector struct {
	Ctx     InspectorContext
	session *Session
}

// Send delivers msg to the inspector window.
func (i Inspector) Send(ctx context.Context, msg any) error {
	return i.session.SendToInspector(ctx, i.Ctx, msg)
}

// Display addresses the tile display an event came from.
type Display struct {
	Ctx     DisplayContext
	session *Session
}

func (d Display) Send(ctx context.Context, msg any) error {
	return d.session.SendToDisplay(ctx, d.Ctx, msg)
}

func (s *Session) Inspector(ctx InspectorContext) Inspector {
	return Inspector{Ctx: ctx, session: s}
}

func (s *Session) Display(ctx DisplayContext) Display {
	return Display{Ctx: ctx, session: s}
}
