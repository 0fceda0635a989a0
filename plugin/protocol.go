package plugin

import (
	"encoding/json"
	"fmt"
)

// Event topics the host emits.
const (
	TopicProperties        = "properties"
	TopicTileProperties    = "tile_properties"
	TopicTileClicked       = "tile_clicked"
	TopicRecvFromInspector = "recv_from_inspector"
	TopicInspectorOpen     = "inspector_open"
	TopicInspectorClose    = "inspector_close"
	TopicRecvFromDisplay   = "recv_from_display"
	TopicDeepLink          = "deep_link"
	TopicDeviceTiles       = "device_tiles"
	TopicVisibleTiles      = "visible_tiles"
)

// Methods the host answers.
const (
	MethodRegister          = "register"
	MethodGetProperties     = "get_properties"
	MethodSetProperties     = "set_properties"
	MethodSendToInspector   = "send_to_inspector"
	MethodSendToDisplay     = "send_to_display"
	MethodOpenURL           = "open_url"
	MethodGetTileProperties = "get_tile_properties"
	MethodSetTileProperties = "set_tile_properties"
	MethodSetTileIcon       = "set_tile_icon"
	MethodSetTileLabel      = "set_tile_label"
	MethodGetVisibleTiles   = "get_visible_tiles"
)

// InspectorContext identifies the inspector window of one tile.
type InspectorContext struct {
	ProfileID string `json:"profile_id"`
	FolderID  string `json:"folder_id"`
	PluginID  string `json:"plugin_id"`
	ActionID  string `json:"action_id"`
	TileID    string `json:"tile_id"`
}

// DisplayContext identifies a tile's display surface on a device.
type DisplayContext struct {
	DeviceID string `json:"device_id"`
	PluginID string `json:"plugin_id"`
	ActionID string `json:"action_id"`
	TileID   string `json:"tile_id"`
}

type TileInteractionContext struct {
	DeviceID string `json:"device_id"`
	PluginID string `json:"plugin_id"`
	ActionID string `json:"action_id"`
	TileID   string `json:"tile_id"`
}

type DeepLinkContext struct {
	URL      string `json:"url"`
	Host     string `json:"host,omitempty"`
	Path     string `json:"path"`
	Query    string `json:"query,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

// TileModel is one tile as reported in device and visible tile lists.
type TileModel struct {
	ID         string  `json:"id"`
	FolderID   string  `json:"folder_id,omitempty"`
	PluginID   string  `json:"plugin_id"`
	ActionID   string  `json:"action_id"`
	Properties Payload `json:"properties,omitempty"`
}

type TileIconKind string

const (
	TileIconNone       TileIconKind = "None"
	TileIconPluginIcon TileIconKind = "PluginIcon"
	TileIconIconPack   TileIconKind = "IconPack"
	TileIconURL        TileIconKind = "Url"
	TileIconUploaded   TileIconKind = "Uploaded"
)

// TileIcon is tagged by Type; only the fields for that type are sent.
type TileIcon struct {
	Type     TileIconKind `json:"type"`
	PluginID string       `json:"plugin_id,omitempty"`
	Icon     string       `json:"icon,omitempty"`
	PackID   string       `json:"pack_id,omitempty"`
	Path     string       `json:"path,omitempty"`
	Src      string       `json:"src,omitempty"`
}

func NoIcon() TileIcon { return TileIcon{Type: TileIconNone} }

func PluginIcon(pluginID, icon string) TileIcon {
	return TileIcon{Type: TileIconPluginIcon, PluginID: pluginID, Icon: icon}
}

func IconPackIcon(packID, path string) TileIcon {
	return TileIcon{Type: TileIconIconPack, PackID: packID, Path: path}
}

func URLIcon(src string) TileIcon { return TileIcon{Type: TileIconURL, Src: src} }

func UploadedIcon(path string) TileIcon { return TileIcon{Type: TileIconUploaded, Path: path} }

func (i TileIcon) Validate() error {
	switch i.Type {
	case TileIconNone:
	case TileIconPluginIcon:
		if i.PluginID == "" || i.Icon == "" {
			return fmt.Errorf("plugin: plugin icon needs plugin_id and icon")
		}
	case TileIconIconPack:
		if i.PackID == "" || i.Path == "" {
			return fmt.Errorf("plugin: icon pack icon needs pack_id and path")
		}
	case TileIconURL:
		if i.Src == "" {
			return fmt.Errorf("plugin: url icon needs src")
		}
	case TileIconUploaded:
		if i.Path == "" {
			return fmt.Errorf("plugin: uploaded icon needs path")
		}
	default:
		return fmt.Errorf("plugin: unknown icon type %q", i.Type)
	}
	return nil
}

type LabelAlign string

const (
	LabelAlignBottom LabelAlign = "Bottom"
	LabelAlignMiddle LabelAlign = "Middle"
	LabelAlignTop    LabelAlign = "Top"
)

type TileLabel struct {
	Enabled      bool       `json:"enabled"`
	Label        string     `json:"label"`
	Align        LabelAlign `json:"align"`
	Font         string     `json:"font"`
	FontSize     uint32     `json:"font_size"`
	Bold         bool       `json:"bold"`
	Italic       bool       `json:"italic"`
	Underline    bool       `json:"underline"`
	Outline      bool       `json:"outline"`
	Color        string     `json:"color"`
	OutlineColor string     `json:"outline_color"`
}

// DefaultTileLabel matches the host's default label styling.
func DefaultTileLabel(text string) TileLabel {
	return TileLabel{
		Enabled:      true,
		Label:        text,
		Align:        LabelAlignBottom,
		Font:         "Roboto",
		FontSize:     10,
		Outline:      true,
		Color:        "#ffffff",
		OutlineColor: "#000000",
	}
}

// toPayload converts a JSON-shaped value into a Payload.
func toPayload(v any) (Payload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeField decodes p[key] into out. A missing key leaves out untouched.
func decodeField(p Payload, key string, out any) error {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("plugin: decode %s: %w", key, err)
	}
	return nil
}

func payloadField(p Payload, key string) Payload {
	if v, ok := p[key].(map[string]any); ok {
		return Payload(v)
	}
	return Payload{}
}
