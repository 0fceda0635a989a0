package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/auth"
	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/rs/zerolog"
)

// MethodRegister is the first call on every physical connection.
const MethodRegister = "register"

var ErrInvalidIdentity = errors.New("session: invalid identity")

// Identity is resent in every handshake.
type Identity struct {
	PluginID    string
	AccessToken auth.Token
}

func (i Identity) Validate() error {
	if strings.TrimSpace(i.PluginID) == "" {
		return fmt.Errorf("%w: missing plugin_id", ErrInvalidIdentity)
	}
	return nil
}

// Registration is the handshake call payload.
func (i Identity) Registration() envelope.Payload {
	p := envelope.Payload{"plugin_id": strings.TrimSpace(i.PluginID)}
	if !i.AccessToken.Empty() {
		p["access_token"] = i.AccessToken.Value()
	}
	return p
}

// handshake sends the registration call and waits for its response.
// Frames other than the matching reply are dropped.
func handshake(
	ctx context.Context,
	t Transport,
	codec envelope.Codec,
	id Identity,
	callID string,
	timeout time.Duration,
	log zerolog.Logger,
) (envelope.Payload, error) {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// An expired handshake closes the transport so the blocked read returns.
	stop := context.AfterFunc(hctx, func() { _ = t.Close() })

	ack, err := exchangeRegistration(hctx, t, codec, id, callID, log)
	if !stop() {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, context.Cause(hctx))
	}
	if err != nil {
		return nil, err
	}
	return ack, nil
}

func exchangeRegistration(
	ctx context.Context,
	t Transport,
	codec envelope.Codec,
	id Identity,
	callID string,
	log zerolog.Logger,
) (envelope.Payload, error) {
	raw, err := codec.Encode(envelope.NewCall(callID, MethodRegister, id.Registration()))
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrHandshakeFailed, err)
	}
	if err := t.WriteMessage(ctx, codec.FrameType(), raw); err != nil {
		return nil, fmt.Errorf("%w: write: %v", ErrHandshakeFailed, err)
	}

	for {
		frame, err := t.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: read: %v", ErrHandshakeFailed, err)
		}
		env, err := codec.Decode(frame)
		if err != nil {
			log.Warn().Err(err).Msg("session.handshake malformed frame skipped")
			continue
		}
		if env.ID != callID {
			log.Debug().Str("kind", string(env.Kind)).Str("name", env.Name()).Msg("session.handshake frame before ack dropped")
			continue
		}
		switch env.Kind {
		case envelope.KindResponse:
			return env.Data, nil
		case envelope.KindError:
			return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, remoteErrorFrom(MethodRegister, env.Error))
		default:
			log.Debug().Str("kind", string(env.Kind)).Msg("session.handshake unexpected kind with handshake id")
		}
	}
}
