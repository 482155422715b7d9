package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseFlag normalizes a loosely typed boolean option into a strict bool.
//
// Decision table:
//
//	absent, null                     -> false
//	true, false                      -> as is
//	1, 0                             -> true, false
//	"true" "1" "yes" "on"            -> true  (trimmed, case-insensitive)
//	"false" "0" "no" "off" ""        -> false (trimmed, case-insensitive)
//	anything else                    -> ErrInvalidFlag
func ParseFlag(raw json.RawMessage) (bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}

	var value interface{}
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		switch v {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		return ParseFlagString(v)
	}

	return false, fmt.Errorf("%w: %s", ErrInvalidFlag, string(trimmed))
}

// ParseFlagString applies the string rows of the ParseFlag decision table
func ParseFlagString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidFlag, s)
}
