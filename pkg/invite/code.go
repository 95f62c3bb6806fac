package invite

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// CodeLength is the length of every issued code.
	CodeLength = 12
	// DefaultPrefix marks codes issued by this service.
	DefaultPrefix = "C2C"

	timestampDigits = 4
	randomBytes     = 4
	maxAttempts     = 16
)

// codeGenerator builds codes as prefix + base36 millis tail + uppercase hex
// random characters. The timestamp part is capped so that the random part
// always survives the cut to CodeLength.
type codeGenerator struct {
	prefix string
	rand   io.Reader
}

func newCodeGenerator(prefix string, rand io.Reader) (codeGenerator, error) {
	if len(prefix)+timestampDigits >= CodeLength {
		return codeGenerator{}, fmt.Errorf("code prefix %q leaves no room for random characters", prefix)
	}
	return codeGenerator{prefix: prefix, rand: rand}, nil
}

func (g codeGenerator) next(now time.Time) (string, error) {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	if len(ts) > timestampDigits {
		ts = ts[len(ts)-timestampDigits:]
	}

	need := CodeLength - len(g.prefix) - len(ts)
	n := randomBytes
	if 2*n < need {
		n = (need + 1) / 2
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	random := strings.ToUpper(hex.EncodeToString(buf))

	return (g.prefix + ts + random)[:CodeLength], nil
}

// unique draws codes until one is not rejected by taken.
func (g codeGenerator) unique(now time.Time, taken func(string) bool) (string, error) {
	for range maxAttempts {
		code, err := g.next(now)
		if err != nil {
			return "", err
		}
		if !taken(code) {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
