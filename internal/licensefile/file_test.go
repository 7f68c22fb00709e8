package licensefile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) *Keys {
	t.Helper()
	k, err := GenerateKeys()
	require.NoError(t, err)
	return k
}

func samplePayload() *Payload {
	inicio, fin := "2025-03-01T12:00:00.000Z", "2025-03-31T12:00:00.000Z"
	device := "POS-<1>&"
	id, name := "c-1", "Colmado \"El Primo\""
	return &Payload{
		V:               PayloadVersion,
		ProjectCode:     "FULLPOS",
		LicenseKey:      "FULL-ABCDE-FGHJK-LMNPQ",
		Tipo:            "FULL",
		FechaInicio:     &inicio,
		FechaFin:        &fin,
		DiasValidez:     30,
		MaxDispositivos: 2,
		DeviceID:        &device,
		Customer:        &PayloadCustomer{ID: &id, NombreNegocio: &name},
		IssuedAt:        "2025-03-02T08:30:00.000Z",
	}
}

func signSample(t *testing.T, keys *Keys) []byte {
	t.Helper()
	f, err := Sign(keys, samplePayload())
	require.NoError(t, err)
	raw, err := f.Marshal()
	require.NoError(t, err)
	return raw
}

func TestCanonicalFieldOrderAndEscaping(t *testing.T) {
	body, err := Canonical(samplePayload())
	require.NoError(t, err)

	s := string(body)
	assert.True(t, strings.HasPrefix(s, `{"v":1,"project_code":"FULLPOS","business_id":null,"license_key":`))
	assert.Contains(t, s, `"device_id":"POS-<1>&"`)
	assert.True(t, strings.HasSuffix(s, `"issued_at":"2025-03-02T08:30:00.000Z"}`))
	assert.NotContains(t, s, "\n")
	assert.Less(t, strings.Index(s, `"fecha_inicio"`), strings.Index(s, `"fecha_fin"`))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	keys := testKeys(t)
	raw := signSample(t, keys)

	payload, err := Verify(keys, raw)
	require.NoError(t, err)
	assert.Equal(t, samplePayload(), payload)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, Alg, envelope["alg"])
}

func TestVerifyRejectsPayloadByteFlips(t *testing.T) {
	keys := testKeys(t)
	raw := signSample(t, keys)

	start := strings.Index(string(raw), "FULL-ABCDE")
	require.Positive(t, start)
	for i := start; i < start+len("FULL-ABCDE-FGHJK-LMNPQ"); i++ {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		_, err := Verify(keys, tampered)
		assert.Error(t, err, "byte %d", i)
	}
}

func TestVerifyRejectsPayloadKeyChanges(t *testing.T) {
	keys := testKeys(t)
	raw := string(signSample(t, keys))

	start := strings.Index(raw, `"payload":{`) + len(`"payload":`)
	end := strings.Index(raw, `,"signature"`)
	require.Positive(t, start)
	require.Greater(t, end, start)
	for i := start; i < end; i++ {
		if raw[i] < 'a' || raw[i] > 'z' {
			continue
		}
		tampered := []byte(raw)
		tampered[i] -= 'a' - 'A'
		_, err := Verify(keys, tampered)
		assert.Error(t, err, "byte %d (%q)", i, raw[i])
	}

	cases := map[string]string{
		"upper-cased key": strings.Replace(raw, `"tipo":"FULL"`, `"TIPO":"FULL"`, 1),
		"extra key":       strings.Replace(raw, `"tipo":"FULL"`, `"tipo":"FULL","extra":1`, 1),
		"reordered keys":  strings.Replace(raw, `"v":1,"project_code":"FULLPOS"`, `"project_code":"FULLPOS","v":1`, 1),
	}
	for name, tampered := range cases {
		require.NotEqual(t, raw, tampered, name)
		_, err := Verify(keys, []byte(tampered))
		assert.ErrorIs(t, err, apperr.ErrBadSignature, name)
	}
}

func TestVerifyAcceptsIndentedPayload(t *testing.T) {
	keys := testKeys(t)
	raw := signSample(t, keys)

	var pretty bytes.Buffer
	require.NoError(t, json.Indent(&pretty, raw, "", "  "))
	payload, err := Verify(keys, pretty.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "FULL", payload.Tipo)
}

func TestVerifyRejectsSignatureByteFlips(t *testing.T) {
	keys := testKeys(t)
	f, err := Sign(keys, samplePayload())
	require.NoError(t, err)

	sig, err := base64.StdEncoding.DecodeString(f.Signature)
	require.NoError(t, err)
	for i := range sig {
		flipped := append([]byte(nil), sig...)
		flipped[i] ^= 0x80
		tampered := *f
		tampered.Signature = base64.StdEncoding.EncodeToString(flipped)
		raw, err := tampered.Marshal()
		require.NoError(t, err)

		_, err = Verify(keys, raw)
		assert.ErrorIs(t, err, apperr.ErrBadSignature)
	}
}

func TestVerifyWithOtherKeyFails(t *testing.T) {
	raw := signSample(t, testKeys(t))
	_, err := Verify(testKeys(t), raw)
	assert.ErrorIs(t, err, apperr.ErrBadSignature)
}

func TestVerifyStructuralErrors(t *testing.T) {
	keys := testKeys(t)

	_, err := Verify(keys, []byte(`not json`))
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)

	_, err = Verify(keys, []byte(`[1,2]`))
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)

	_, err = Verify(keys, []byte(`{"payload":{"v":1}}`))
	assert.ErrorIs(t, err, apperr.ErrMissingFields)

	_, err = Verify(keys, []byte(`{"payload":null,"signature":"abc"}`))
	assert.ErrorIs(t, err, apperr.ErrMissingFields)

	_, err = Verify(keys, []byte(`{"payload":{"v":1},"signature":"abc","alg":"RS256"}`))
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
}

func TestSignWithoutPrivateKey(t *testing.T) {
	keys := testKeys(t)
	verifyOnly := &Keys{Public: keys.Public}

	_, err := Sign(verifyOnly, samplePayload())
	assert.ErrorIs(t, err, apperr.ErrMissingEnv)

	_, err = Sign(nil, samplePayload())
	assert.ErrorIs(t, err, apperr.ErrMissingEnv)

	_, err = Verify(&Keys{}, []byte(`{}`))
	assert.ErrorIs(t, err, apperr.ErrMissingEnv)
}
