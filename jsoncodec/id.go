package jsoncodec

import (
	"bytes"
	"strconv"
)

// ID is an identifier that upstream APIs send either as a JSON number or as a
// JSON string. It always decodes to its textual form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(b)
	return nil
}

func (id ID) String() string { return string(id) }
