package debugserver

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Formats accepted by Encode.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or msgpack)", s)
	}
}

// ContentType returns the MIME type of a format.
func ContentType(format string) string {
	if format == FormatMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

// Encode writes v to w in format.
func Encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(v)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
