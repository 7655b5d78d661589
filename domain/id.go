package domain

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ID identifies a ledger entity. Permanent ids are issued by the ledger as
// integers; temporary ids minted by the client use the "collection$n" form.
type ID string

// TempID builds a temporary id for the given collection and sequence number.
func TempID(collection string, n int) ID {
	return ID(collection + "$" + strconv.Itoa(n))
}

// IsTemp reports whether the id is a client-minted placeholder.
func (id ID) IsTemp() bool {
	return strings.Contains(string(id), "$")
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

func (id ID) numeric() bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MarshalJSON emits digit-only ids as JSON numbers so they round-trip to the
// ledger in the form it issued them.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return sonic.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number, a JSON string or a reference object
// of the form {"_id": ...} as returned by compact ledger queries.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '{' {
		var ref struct {
			ID ID `json:"_id"`
		}
		if err := sonic.Unmarshal(data, &ref); err != nil {
			return err
		}
		*id = ref.ID
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if _, err := strconv.ParseUint(string(data), 10, 64); err != nil {
		return errors.New("domain: id must be a string or an unsigned integer")
	}
	*id = ID(data)
	return nil
}
