package sqlite

import (
	"fmt"
	"time"

	"github.com/roach88/infobase/internal/thing"
)

// timeLayout is fixed-width so TEXT comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// encodeData converts thing data to canonical JSON TEXT for storage.
func encodeData(d thing.Data) (string, error) {
	if d == nil {
		d = thing.Data{}
	}
	raw, err := thing.MarshalCanonical(d)
	if err != nil {
		return "", fmt.Errorf("encode data: %w", err)
	}
	return string(raw), nil
}

// decodeData parses stored canonical JSON TEXT.
func decodeData(raw string) (thing.Data, error) {
	if raw == "" || raw == "{}" {
		return thing.Data{}, nil
	}
	return thing.DecodeData([]byte(raw))
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time %q: %w", s, err)
	}
	return t, nil
}
