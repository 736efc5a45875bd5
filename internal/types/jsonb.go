package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*NotifyErrors)(nil)
	_ driver.Valuer = NotifyErrors(nil)
)

// NotifyErrors holds raw error objects returned by the notify API. The
// objects are kept verbatim so nothing the upstream reported is lost.
type NotifyErrors []json.RawMessage

// scanJSONB scans a JSONB database value into dest. It accepts []byte and
// string representations.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements sql.Scanner. A stored JSON object (rather than an array)
// is kept as a single element.
func (e *NotifyErrors) Scan(value any) error {
	if value == nil {
		*e = nil
		return nil
	}
	var raw json.RawMessage
	if err := scanJSONB(&raw, value); err != nil {
		return err
	}
	if len(raw) > 0 && raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("jsonb: %w", err)
		}
		*e = list
		return nil
	}
	*e = NotifyErrors{raw}
	return nil
}

// Value implements driver.Valuer. A nil list is stored as NULL.
func (e NotifyErrors) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal([]json.RawMessage(e))
}

// Append returns a copy of e with obj added.
func (e NotifyErrors) Append(obj json.RawMessage) NotifyErrors {
	out := make(NotifyErrors, 0, len(e)+1)
	out = append(out, e...)
	return append(out, obj)
}

// Titles extracts the "title" field of every error object that has one.
func (e NotifyErrors) Titles() []string {
	var titles []string
	for _, raw := range e {
		var obj struct {
			Title string `json:"title"`
		}
		if json.Unmarshal(raw, &obj) == nil && obj.Title != "" {
			titles = append(titles, obj.Title)
		}
	}
	return titles
}
