package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire payloads are produced by more than one server generation and are not
// consistently typed. The types here absorb the known drift so individual
// fields never abort a whole event.

// FlexBool accepts JSON true/false as well as the 0/1 integers some server
// versions emit for the same fields.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*b = true
		return nil
	case "false", "null":
		*b = false
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex bool: %s", data)
	}
	*b = n != 0
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

func (b FlexBool) Bool() bool { return bool(b) }

// FlexString normalizes the three wire spellings of "no value": an explicit
// null, an absent field, and the literal string "<null>".
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("flex string: %s", data)
	}
	if raw == "<null>" {
		raw = ""
	}
	*s = FlexString(raw)
	return nil
}

func (s FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s FlexString) String() string { return string(s) }
