package plugin

import (
	"context"
	"sync"
)

// binding routes one session's events into a Plugin. mu serializes every
// callback so plugins never see two at once.
type binding struct {
	s   *Session
	p   Plugin
	ctx context.Context

	mu      sync.Mutex
	stopped bool
}

// Bind delivers the session's host events to p and, after every handshake,
// calls OnRegistered and then requests the plugin properties. The returned
// func detaches p; it is safe to call more than once.
func Bind(s *Session, p Plugin) (unbind func()) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &binding{s: s, p: p, ctx: ctx}
	sub := s.Subscribe(AllTopics, b.route)
	s.OnConnected(b.registered)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.Unsubscribe(sub)
			cancel()
			b.mu.Lock()
			b.stopped = true
			b.mu.Unlock()
		})
	}
}

// deliver runs fn under the callback lock unless the binding was detached.
func (b *binding) deliver(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	fn()
}

func (b *binding) registered(Payload) {
	if b.ctx.Err() != nil {
		return
	}
	b.deliver(func() { b.p.OnRegistered(b.s) })

	props, err := b.s.GetProperties(b.ctx)
	if err != nil {
		if b.ctx.Err() == nil {
			b.s.log.Warn().Err(err).Msg("plugin.binding.registered properties request failed")
		}
		return
	}
	b.deliver(func() { b.p.OnProperties(b.s, props) })
}

func (b *binding) route(topic string, data Payload) {
	log := b.s.log.With().Str("topic", topic).Logger()
	var err error
	switch topic {
	case TopicProperties:
		b.deliver(func() { b.p.OnProperties(b.s, payloadField(data, "properties")) })

	case TopicTileProperties:
		var tileID string
		if err = decodeField(data, "tile_id", &tileID); err == nil {
			b.deliver(func() { b.p.OnTileProperties(b.s, tileID, payloadField(data, "properties")) })
		}

	case TopicTileClicked:
		var tc TileInteractionContext
		if err = decodeField(data, "ctx", &tc); err == nil {
			b.deliver(func() { b.p.OnTileClicked(b.s, tc, payloadField(data, "properties")) })
		}

	case TopicRecvFromInspector, TopicInspectorOpen, TopicInspectorClose:
		var ic InspectorContext
		if err = decodeField(data, "ctx", &ic); err != nil {
			break
		}
		inspector := b.s.Inspector(ic)
		b.deliver(func() {
			switch topic {
			case TopicRecvFromInspector:
				b.p.OnInspectorMessage(b.s, inspector, data["message"])
			case TopicInspectorOpen:
				b.p.OnInspectorOpen(b.s, inspector)
			default:
				b.p.OnInspectorClose(b.s, inspector)
			}
		})

	case TopicRecvFromDisplay:
		var dc DisplayContext
		if err = decodeField(data, "ctx", &dc); err == nil {
			display := b.s.Display(dc)
			b.deliver(func() { b.p.OnDisplayMessage(b.s, display, data["message"]) })
		}

	case TopicDeepLink:
		var dl DeepLinkContext
		if err = decodeField(data, "ctx", &dl); err == nil {
			b.deliver(func() { b.p.OnDeepLink(b.s, dl) })
		}

	case TopicDeviceTiles:
		var deviceID string
		var tiles []TileModel
		if err = decodeField(data, "device_id", &deviceID); err != nil {
			break
		}
		if err = decodeField(data, "tiles", &tiles); err == nil {
			b.deliver(func() { b.p.OnDeviceTiles(b.s, deviceID, tiles) })
		}

	case TopicVisibleTiles:
		var tiles []TileModel
		if err = decodeField(data, "tiles", &tiles); err == nil {
			b.deliver(func() { b.p.OnVisibleTiles(b.s, tiles) })
		}

	default:
		log.Debug().Msg("plugin.binding.route unhandled topic")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("plugin.binding.route undecodable event dropped")
	}
}
