package wire

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase64URLRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single byte", []byte{0x00}},
		{"two bytes (non block aligned)", []byte{0xff, 0x7f}},
		{"three bytes (block aligned)", []byte{0x01, 0x02, 0x03}},
		{"url unsafe bytes", []byte{0xfb, 0xef, 0xbe, 0xff, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeBase64URL(tt.data)
			assert.NotContains(t, encoded, "=", "encoding must be unpadded")
			assert.NotContains(t, encoded, "+")
			assert.NotContains(t, encoded, "/")

			decoded, err := DecodeBase64URL(encoded)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.data, decoded),
				"decoded bytes must reproduce the original exactly")
		})
	}
}

func TestBase64URLRoundTripRandom(t *testing.T) {
	for size := 0; size < 70; size++ {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)

		decoded, err := DecodeBase64URL(EncodeBase64URL(data))
		require.NoError(t, err)
		assert.Equal(t, data, decoded)
	}
}

func TestDecodeBase64URLToleratesPadding(t *testing.T) {
	decoded, err := DecodeBase64URL("aGk=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), decoded)
}

func TestBinaryFieldsMarshalAsBase64URL(t *testing.T) {
	req := AuthVerifyRequest{
		Action:            ActionAuthVerify,
		DeviceID:          "dev-1",
		CredentialID:      "cred-1",
		AuthenticatorData: protocol.URLEncodedBase64{0xfb, 0xef, 0xbe},
		ClientDataJSON:    protocol.URLEncodedBase64(`{"type":"webauthn.get"}`),
		Signature:         protocol.URLEncodedBase64{0x01, 0x02},
	}

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "="), "wire form must be unpadded")

	var decoded AuthVerifyRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, req.AuthenticatorData, decoded.AuthenticatorData)
	assert.Equal(t, req.ClientDataJSON, decoded.ClientDataJSON)
	assert.Equal(t, req.Signature, decoded.Signature)
}

func TestAccessCheckResponseMarkers(t *testing.T) {
	raw := `{"success":false,"error":"degraded","code":"SERVICE_DOWN"}`
	var resp AccessCheckResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	assert.False(t, resp.Success)
	assert.Equal(t, "SERVICE_DOWN", resp.Code)
	assert.False(t, resp.HasOwner)
}
