package plugin

import (
	"context"
	"fmt"
	"strings"
)

// GetProperties returns the plugin-wide properties.
func (s *Session) GetProperties(ctx context.Context) (Payload, error) {
	out, err := s.Call(ctx, MethodGetProperties, nil, 0)
	if err != nil {
		return nil, err
	}
	return payloadField(out, "properties"), nil
}

// SetProperties replaces the plugin properties, or merges them when partial.
func (s *Session) SetProperties(ctx context.Context, properties Payload, partial bool) error {
	_, err := s.Call(ctx, MethodSetProperties, Payload{
		"properties": map[string]any(properties),
		"partial":    partial,
	}, 0)
	return err
}

func (s *Session) SendToInspector(ctx context.Context, target InspectorContext, message any) error {
	data, err := toPayload(struct {
		Ctx     InspectorContext `json:"ctx"`
		Message any              `json:"message"`
	}{target, message})
	if err != nil {
		return fmt.Errorf("plugin: encode inspector message: %w", err)
	}
	_, err = s.Call(ctx, MethodSendToInspector, data, 0)
	return err
}

func (s *Session) SendToDisplay(ctx context.Context, target DisplayContext, message any) error {
	data, err := toPayload(struct {
		Ctx     DisplayContext `json:"ctx"`
		Message any            `json:"message"`
	}{target, message})
	if err != nil {
		return fmt.Errorf("plugin: encode display message: %w", err)
	}
	_, err = s.Call(ctx, MethodSendToDisplay, data, 0)
	return err
}

// OpenURL asks the host to open url in the user's browser.
func (s *Session) OpenURL(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("plugin: open_url needs a url")
	}
	_, err := s.Call(ctx, MethodOpenURL, Payload{"url": url}, 0)
	return err
}

func (s *Session) GetTileProperties(ctx context.Context, tileID string) (Payload, error) {
	out, err := s.Call(ctx, MethodGetTileProperties, Payload{"tile_id": tileID}, 0)
	if err != nil {
		return nil, err
	}
	return payloadField(out, "properties"), nil
}

func (s *Session) SetTileProperties(ctx context.Context, tileID string, properties Payload, partial bool) error {
	_, err := s.Call(ctx, MethodSetTileProperties, Payload{
		"tile_id":    tileID,
		"properties": map[string]any(properties),
		"partial":    partial,
	}, 0)
	return err
}

func (s *Session) SetTileIcon(ctx context.Context, tileID string, icon TileIcon) error {
	if err := icon.Validate(); err != nil {
		return err
	}
	data, err := toPayload(struct {
		TileID string   `json:"tile_id"`
		Icon   TileIcon `json:"icon"`
	}{tileID, icon})
	if err != nil {
		return err
	}
	_, err = s.Call(ctx, MethodSetTileIcon, data, 0)
	return err
}

func (s *Session) SetTileLabel(ctx context.Context, tileID string, label TileLabel) error {
	data, err := toPayload(struct {
		TileID string    `json:"tile_id"`
		Label  TileLabel `json:"label"`
	}{tileID, label})
	if err != nil {
		return err
	}
	_, err = s.Call(ctx, MethodSetTileLabel, data, 0)
	return err
}

// GetVisibleTiles lists the tiles of this plugin currently on screen.
func (s *Session) GetVisibleTiles(ctx context.Context) ([]TileModel, error) {
	out, err := s.Call(ctx, MethodGetVisibleTiles, nil, 0)
	if err != nil {
		return nil, err
	}
	var tiles []TileModel
	if err := decodeField(out, "tiles", &tiles); err != nil {
		return nil, err
	}
	return tiles, nil
}
