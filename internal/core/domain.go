package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

type (
	// Manager groups transactions on the tracker side.
	Manager struct {
		ID   string
		Name string
	}

	// Transaction is the subset of the upstream transaction record the
	// reports read. Every field is optional and defaults to "".
	Transaction struct {
		UTMSource   string
		CreatedAt   string
		ClientName  string
		ClientEmail string
		ClientPhone string
		ClientCPF   string
	}

	// OptionalString decodes any JSON scalar into a string. null and missing
	// values become "", numbers and booleans keep their literal text, and
	// objects or arrays are dropped to "".
	OptionalString string
)

var ErrEmptyManagerID = errors.New("empty manager id")

// UnmarshalJSON implements json.Unmarshaler.
func (s *OptionalString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = OptionalString(v)
	case '{', '[':
		*s = ""
	default:
		*s = OptionalString(data)
	}
	return nil
}

func (s OptionalString) String() string {
	return string(s)
}

type managerWire struct {
	ID   OptionalString `json:"manager_id"`
	Name OptionalString `json:"name"`
}

// UnmarshalJSON accepts string or numeric manager ids.
func (m *Manager) UnmarshalJSON(data []byte) error {
	var w managerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ID = strings.TrimSpace(w.ID.String())
	m.Name = w.Name.String()
	return nil
}

// Validate reports whether the manager can be used to build a transactions URL.
func (m Manager) Validate() error {
	if m.ID == "" {
		return ErrEmptyManagerID
	}
	return nil
}

type transactionWire struct {
	UTMSource   OptionalString `json:"utm_source"`
	CreatedAt   OptionalString `json:"createdAt"`
	ClientName  OptionalString `json:"clientName"`
	ClientEmail OptionalString `json:"clientEmail"`
	ClientPhone OptionalString `json:"clientPhone"`
	ClientCPF   OptionalString `json:"clientCpf"`
}

// UnmarshalJSON never fails on a missing or oddly typed field.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var w transactionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Transaction{
		UTMSource:   w.UTMSource.String(),
		CreatedAt:   w.CreatedAt.String(),
		ClientName:  w.ClientName.String(),
		ClientEmail: w.ClientEmail.String(),
		ClientPhone: w.ClientPhone.String(),
		ClientCPF:   w.ClientCPF.String(),
	}
	return nil
}
