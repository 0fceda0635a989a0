// Package plugin is the public SDK for tilepad plugins.
//
// A Session holds one WebSocket connection to the host. It registers with the
// plugin id and access token, correlates calls with their replies, delivers
// host events to subscribers in wire order, and reconnects with backoff when
// the link drops. Calls made while disconnected fail with ErrConnectionLost.
//
// Most plugins embed BasePlugin, override the callbacks they need, and hand
// the value to Start, which reads the host's launch flags:
//
//	type echo struct{ plugin.BasePlugin }
//
//	func (echo) OnInspectorMessage(s *plugin.Session, in plugin.Inspector, msg any) {
//		_ = in.Send(context.Background(), msg)
//	}
//
//	func main() {
//		if err := plugin.Start(context.Background(), echo{}); err != nil {
//			log.Fatal(err)
//		}
//	}
package plugin
