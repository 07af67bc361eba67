package nekojirushi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IntOrString decodes a JSON value that the site emits inconsistently as
// either a number or a numeric string.
type IntOrString int

// UnmarshalJSON implements json.Unmarshaler
func (v *IntOrString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*v = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("numeric string expected, got %q: %w", s, err)
		}
		*v = IntOrString(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = IntOrString(n)
	return nil
}

// Int returns the value as a plain int
func (v IntOrString) Int() int { return int(v) }

// String returns the decimal representation
func (v IntOrString) String() string { return strconv.Itoa(int(v)) }
