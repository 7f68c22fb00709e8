package license

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/fullpos/license-server/internal/models"
)

const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateKey returns a key like FULL-7K2QD-M9XHP-R4TZA. Non-FULL kinds use the DEMO prefix.
func GenerateKey(tipo models.LicenseTipo) (string, error) {
	prefix := "DEMO"
	if strings.EqualFold(string(tipo), string(models.TipoFull)) {
		prefix = "FULL"
	}
	segs := make([]string, 3)
	for i := range segs {
		s, err := randomSegment(5)
		if err != nil {
			return "", err
		}
		segs[i] = s
	}
	return fmt.Sprintf("%s-%s-%s-%s", prefix, segs[0], segs[1], segs[2]), nil
}

func randomSegment(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(out), nil
}
