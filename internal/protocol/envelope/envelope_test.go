package envelope

import (
	"errors"
	"testing"

	"github.com/danmuck/tilepad-sdk/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func codecs() map[string]Codec {
	return map[string]Codec{
		"json":  JSONCodec{},
		"proto": ProtoCodec{},
	}
}

func TestCallRoundTrip(t *testing.T) {
	testlog.Start(t)
	orig := NewCall("0190b6f5-8c3e-7a11-9c6d-5d1f4a2b3c4d", "set_property", Payload{
		"key":   "volume",
		"value": float64(10),
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"muted": false},
	})
	for name, codec := range codecs() {
		t.Run(name, func(t *testing.T) {
			raw, err := codec.Encode(orig)
			require.NoError(t, err)
			got, err := codec.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, orig, got)
		})
	}
}

func TestErrorAndEventRoundTrip(t *testing.T) {
	testlog.Start(t)
	frames := []Envelope{
		NewError("id-1", 404, "unknown tile"),
		NewEvent("tile_clicked", Payload{"tile_id": "t-1"}),
		NewResponse("id-2", Payload{"ok": true}),
	}
	for name, codec := range codecs() {
		for _, orig := range frames {
			raw, err := codec.Encode(orig)
			require.NoError(t, err, "codec=%s kind=%s", name, orig.Kind)
			got, err := codec.Decode(raw)
			require.NoError(t, err, "codec=%s kind=%s", name, orig.Kind)
			assert.Equal(t, orig, got, "codec=%s", name)
		}
	}
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"response without id": `{"kind":"response","data":{"ok":true}}`,
		"call without method": `{"kind":"call","id":"x"}`,
		"call without id":     `{"kind":"call","method":"register"}`,
		"error without body":  `{"kind":"error","id":"x"}`,
		"event without topic": `{"kind":"event","data":{}}`,
		"event with id":       `{"kind":"event","id":"x","topic":"t"}`,
		"unknown kind":        `{"kind":"notify","id":"x"}`,
		"missing kind":        `{"id":"x"}`,
		"data not object":     `{"kind":"response","id":"x","data":5}`,
		"not json":            `{"kind":`,
		"empty":               ``,
	}
	for name, raw := range cases {
		_, err := JSONCodec{}.Decode([]byte(raw))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrMalformedFrame), "%s: %v", name, err)

		var mf *MalformedFrameError
		require.True(t, errors.As(err, &mf), name)
		assert.Equal(t, raw, string(mf.Raw), name)
	}
}

func TestProtoDecodeRejectsGarbage(t *testing.T) {
	testlog.Start(t)
	_, err := ProtoCodec{}.Decode([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeRejectsInvalidEnvelope(t *testing.T) {
	testlog.Start(t)
	for name, codec := range codecs() {
		_, err := codec.Encode(Envelope{Kind: KindCall, Method: "register"})
		assert.ErrorIs(t, err, ErrInvalidEnvelope, name)
	}
}

func TestProtoEncodeNormalizesTypedValues(t *testing.T) {
	testlog.Start(t)
	type label struct {
		Text string `json:"text"`
	}
	raw, err := ProtoCodec{}.Encode(NewCall("id", "set_tile_label", Payload{
		"label": label{Text: "hi"},
		"ids":   []string{"a"},
		"size":  12,
	}))
	require.NoError(t, err)
	got, err := ProtoCodec{}.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi"}, got.Data["label"])
	assert.Equal(t, []any{"a"}, got.Data["ids"])
	assert.Equal(t, float64(12), got.Data["size"])
}

func TestCodecByName(t *testing.T) {
	testlog.Start(t)
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, FrameText, c.FrameType())

	c, err = CodecByName("Proto")
	require.NoError(t, err)
	assert.Equal(t, FrameBinary, c.FrameType())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}

func TestIntegersComeBackAsFloat64(t *testing.T) {
	testlog.Start(t)
	orig := NewCall("id-1", "set_property", Payload{"key": "volume", "value": 10})
	for name, codec := range codecs() {
		t.Run(name, func(t *testing.T) {
			raw, err := codec.Encode(orig)
			require.NoError(t, err)
			got, err := codec.Decode(raw)
			require.NoError(t, err)
			assert.NotEqual(t, orig.Data, got.Data)
			assert.Equal(t, float64(10), got.Data["value"])
			assert.Equal(t, "volume", got.Data["key"])
		})
	}
}

func protoFrame(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	st, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	raw, err := proto.Marshal(st)
	require.NoError(t, err)
	return raw
}

func TestDecodeRejectsMistypedHeaderFields(t *testing.T) {
	testlog.Start(t)
	protoCases := map[string]map[string]any{
		"numeric id":     {"kind": "event", "topic": "t", "id": 7.0},
		"numeric method": {"kind": "call", "id": "a", "method": 1.0},
		"bool topic":     {"kind": "event", "topic": true},
		"string code":    {"kind": "error", "id": "a", "error": map[string]any{"code": "404", "message": "x"}},
		"fraction code":  {"kind": "error", "id": "a", "error": map[string]any{"code": 4.5, "message": "x"}},
		"numeric msg":    {"kind": "error", "id": "a", "error": map[string]any{"code": 404.0, "message": 1.0}},
	}
	for name, fields := range protoCases {
		_, err := ProtoCodec{}.Decode(protoFrame(t, fields))
		assert.ErrorIs(t, err, ErrMalformedFrame, "proto %s", name)
	}

	jsonCases := map[string]string{
		"numeric id":    `{"kind":"event","topic":"t","id":7}`,
		"string code":   `{"kind":"error","id":"a","error":{"code":"404","message":"x"}}`,
		"numeric topic": `{"kind":"event","topic":3}`,
	}
	for name, raw := range jsonCases {
		_, err := JSONCodec{}.Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, "json %s", name)
	}

	ok, err := ProtoCodec{}.Decode(protoFrame(t, map[string]any{
		"kind": "error", "id": "a", "error": map[string]any{"code": 404.0, "message": "nope"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 404, ok.Error.Code)
}

func TestCloneIsDeep(t *testing.T) {
	testlog.Start(t)
	orig := Payload{
		"meta": map[string]any{"muted": false},
		"tags": []any{"a", map[string]any{"n": 1.0}},
	}
	cp := orig.Clone()
	cp["meta"].(map[string]any)["muted"] = true
	cp["tags"].([]any)[1].(map[string]any)["n"] = 2.0
	cp["extra"] = "x"

	assert.Equal(t, false, orig["meta"].(map[string]any)["muted"])
	assert.Equal(t, 1.0, orig["tags"].([]any)[1].(map[string]any)["n"])
	assert.NotContains(t, orig, "extra")
	assert.Nil(t, Payload(nil).Clone())
}
