package licensefile

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
)

// Alg is the only signature algorithm issued.
const Alg = "Ed25519"

// PayloadVersion is written to the v field of every payload.
const PayloadVersion = 1

// TimeLayout matches millisecond ISO-8601 UTC timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func formatTimep(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

// ParseTime accepts TimeLayout and RFC 3339 timestamps.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Payload is the signed body of an offline license file. Field order is the
// serialization order and must not change.
type Payload struct {
	V               int              `json:"v"`
	ProjectCode     string           `json:"project_code"`
	BusinessID      *string          `json:"business_id"`
	LicenseKey      string           `json:"license_key"`
	Tipo            string           `json:"tipo"`
	FechaInicio     *string          `json:"fecha_inicio"`
	FechaFin        *string          `json:"fecha_fin"`
	DiasValidez     int              `json:"dias_validez"`
	MaxDispositivos int              `json:"max_dispositivos"`
	DeviceID        *string          `json:"device_id"`
	Customer        *PayloadCustomer `json:"customer"`
	IssuedAt        string           `json:"issued_at"`
}

// PayloadCustomer identifies the license holder inside a payload.
type PayloadCustomer struct {
	ID            *string `json:"id"`
	NombreNegocio *string `json:"nombre_negocio"`
}

// File is the distributable license file.
type File struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	Alg       string          `json:"alg"`
}

// Canonical serializes v as compact JSON without HTML escaping, the exact bytes
// that are signed.
func Canonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Marshal encodes the file the same way its payload was signed.
func (f *File) Marshal() ([]byte, error) {
	return Canonical(f)
}

// Sign produces a file for payload. It fails with MISSING_ENV without a private key.
func Sign(keys *Keys, payload interface{}) (*File, error) {
	if !keys.CanSign() {
		return nil, apperr.ErrMissingEnv
	}
	body, err := Canonical(payload)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(keys.Private, body)
	return &File{
		Payload:   body,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Alg:       Alg,
	}, nil
}

// Verify checks a license file against the public key. The supplied payload,
// compacted, must be byte-for-byte the canonical form of its decoded value.
func Verify(keys *Keys, raw []byte) (*Payload, error) {
	return verifyAs[Payload](keys, raw)
}

func verifyAs[T any](keys *Keys, raw []byte) (*T, error) {
	if !keys.CanVerify() {
		return nil, apperr.ErrMissingEnv
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope == nil {
		return nil, apperr.ErrInvalidFormat
	}

	payloadRaw, hasPayload := envelope["payload"]
	var signature string
	if s, ok := envelope["signature"]; ok {
		if err := json.Unmarshal(s, &signature); err != nil {
			return nil, apperr.ErrInvalidFormat
		}
	}
	if !hasPayload || isNull(payloadRaw) || signature == "" {
		return nil, apperr.ErrMissingFields
	}
	if alg, ok := envelope["alg"]; ok && !isNull(alg) {
		var name string
		if err := json.Unmarshal(alg, &name); err != nil || name != Alg {
			return nil, apperr.ErrInvalidFormat.WithMessage("unsupported alg")
		}
	}

	var payload T
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return nil, apperr.ErrInvalidFormat
	}
	body, err := Canonical(&payload)
	if err != nil {
		return nil, err
	}
	var supplied bytes.Buffer
	if err := json.Compact(&supplied, payloadRaw); err != nil {
		return nil, apperr.ErrInvalidFormat
	}
	if !bytes.Equal(supplied.Bytes(), body) {
		return nil, apperr.ErrBadSignature
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, apperr.ErrBadSignature
	}
	if !ed25519.Verify(keys.Public, body, sig) {
		return nil, apperr.ErrBadSignature
	}
	return &payload, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
