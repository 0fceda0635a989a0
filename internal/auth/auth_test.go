package auth

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/danmuck/tilepad-sdk/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	assert.ErrorIs(t, validator.Validate("bad"), ErrUnauthorized)
	assert.NoError(t, validator.Validate("ok"))
}

func TestTokenNeverPrintsValue(t *testing.T) {
	testlog.Start(t)
	tok := Token("s3cret")
	assert.Equal(t, "[redacted]", tok.String())
	assert.NotContains(t, fmt.Sprintf("%v %s", tok, tok), "s3cret")
	assert.Equal(t, "s3cret", tok.Value())
	assert.Equal(t, "", Token("").String())
}

func TestBearerHeaderRoundTrip(t *testing.T) {
	testlog.Start(t)
	assert.Nil(t, BearerHeader(""))
	assert.Nil(t, BearerHeader("   "))

	h := BearerHeader("abc")
	require.NotNil(t, h)
	assert.Equal(t, "Bearer abc", h.Get("Authorization"))

	req := &http.Request{Header: h}
	tok, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, Token("abc"), tok)

	req.Header.Set("Authorization", "bearer   xyz ")
	tok, err = FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, Token("xyz"), tok)

	for _, raw := range []string{"", "Basic abc", "Bearer ", "Bear"} {
		req.Header.Set("Authorization", raw)
		_, err = FromRequest(req)
		assert.ErrorIs(t, err, ErrNoBearer, "header %q", raw)
	}
}
