package plugin

// Plugin receives host events. Callbacks run one at a time in the order the
// host sent them; embed BasePlugin and override only what you need.
type Plugin interface {
	// OnRegistered runs after every successful handshake, before the
	// properties request it triggers is answered.
	OnRegistered(s *Session)
	OnProperties(s *Session, properties Payload)
	OnTileProperties(s *Session, tileID string, properties Payload)
	OnTileClicked(s *Session, ctx TileInteractionContext, properties Payload)
	OnInspectorMessage(s *Session, inspector Inspector, message any)
	OnInspectorOpen(s *Session, inspector Inspector)
	OnInspectorClose(s *Session, inspector Inspector)
	OnDisplayMessage(s *Session, display Display, message any)
	OnDeepLink(s *Session, ctx DeepLinkContext)
	OnDeviceTiles(s *Session, deviceID string, tiles []TileModel)
	OnVisibleTiles(s *Session, tiles []TileModel)
}

// BasePlugin implements every Plugin callback as a no-op.
type BasePlugin struct{}

func (BasePlugin) OnRegistered(*Session)                                   {}
func (BasePlugin) OnProperties(*Session, Payload)                          {}
func (BasePlugin) OnTileProperties(*Session, string, Payload)              {}
func (BasePlugin) OnTileClicked(*Session, TileInteractionContext, Payload) {}
func (BasePlugin) OnInspectorMessage(*Session, Inspector, any)             {}
func (BasePlugin) OnInspectorOpen(*Session, Inspector)                     {}
func (BasePlugin) OnInspectorClose(*Session, Inspector)                    {}
func (BasePlugin) OnDisplayMessage(*Session, Display, any)                 {}
func (BasePlugin) OnDeepLink(*Session, DeepLinkContext)                    {}
func (BasePlugin) OnDeviceTiles(*Session, string, []TileModel)             {}
func (BasePlugin) OnVisibleTiles(*Session, []TileModel)                    {}

var _ Plugin = BasePlugin{}
