package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danmuck/tilepad-sdk/plugin"
)

// echoPlugin sends every inspector message straight back and logs tile presses.
type echoPlugin struct {
	plugin.BasePlugin
}

func (echoPlugin) OnRegistered(s *plugin.Session) {
	log := s.Logger()
	log.Info().Msg("echo registered")
}

func (echoPlugin) OnInspectorMessage(s *plugin.Session, in plugin.Inspector, msg any) {
	log := s.Logger()
	if err := in.Send(context.Background(), msg); err != nil {
		log.Warn().Err(err).Str("tile_id", in.Ctx.TileID).Msg("echo send failed")
	}
}

func (echoPlugin) OnTileClicked(s *plugin.Session, ctx plugin.TileInteractionContext, properties plugin.Payload) {
	log := s.Logger()
	log.Info().
		Str("device_id", ctx.DeviceID).
		Str("tile_id", ctx.TileID).
		Str("action_id", ctx.ActionID).
		Int("properties", len(properties)).
		Msg("echo tile clicked")
}

func main() {
	if err := plugin.Start(context.Background(), echoPlugin{}); err != nil {
		fmt.Fprintf(os.Stderr, "tilepad-echo: %v\n", err)
		os.Exit(1)
	}
}
