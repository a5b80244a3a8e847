package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// types.go - JSONB marshaling helpers for columns with no natural Go
// scalar type. Grounded on the teacher's repository pattern of
// implementing sql.Scanner/driver.Valuer directly on small wrapper types
// rather than pulling in a JSONB library.

// conditionsJSON scans/serializes TradingRule.Conditions (map[string]string)
// to/from a jsonb column.
type conditionsJSON map[string]string

func (c *conditionsJSON) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		s, ok := src.(string)
		if !ok {
			return fmt.Errorf("conditionsJSON: unsupported scan type %T", src)
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, c)
}

func (c conditionsJSON) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	return json.Marshal(map[string]string(c))
}
