package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

var errMessageEncoding = errors.New("message must carry exactly one of utf8 or base64")

// Message holds the raw bytes read from standard input. Valid UTF-8 is stored as readable text,
// anything else as base64, so a record stays legible in an editor for the common case.
type Message []byte

type messageJSON struct {
	UTF8   *string `json:"utf8,omitempty"`
	Base64 *string `json:"base64,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var out messageJSON
	if utf8.Valid(m) {
		s := string(m)
		out.UTF8 = &s
	} else {
		s := base64.StdEncoding.EncodeToString(m)
		out.Base64 = &s
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.UTF8 != nil && in.Base64 == nil:
		*m = Message(*in.UTF8)
	case in.Base64 != nil && in.UTF8 == nil:
		raw, err := base64.StdEncoding.DecodeString(*in.Base64)
		if err != nil {
			return err
		}
		*m = Message(raw)
	default:
		return errMessageEncoding
	}
	return nil
}

// Valid reports whether the message is valid UTF-8.
func (m Message) Valid() bool {
	return utf8.Valid(m)
}

func (m Message) String() string {
	if m.Valid() {
		return string(m)
	}
	return "[invalid UTF-8]" + strings.ToValidUTF8(string(m), "�")
}
