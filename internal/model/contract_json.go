package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gyeh/feesched/internal/normalize"
)

// contractLineJSON is the wire form of a ContractLine. Rate, volume and code
// are kept raw so a bad value fails only its own line.
type contractLineJSON struct {
	SourceRow      int             `json:"source_row"`
	Code           json.RawMessage `json:"code"`
	Modifier       string          `json:"modifier"`
	ContractedRate json.RawMessage `json:"contracted_rate"`
	Volume         json.RawMessage `json:"volume"`
}

// UnmarshalJSON accepts the rate and volume as JSON numbers or strings
// ("$1,234.50", "1,200"). A value that does not parse sets Err instead of
// failing the batch.
func (l *ContractLine) UnmarshalJSON(data []byte) error {
	var w contractLineJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*l = ContractLine{SourceRow: w.SourceRow, Modifier: w.Modifier}

	code, err := scalarText(w.Code)
	if err != nil {
		l.Err = &LineError{Kind: KindInvalidInput, Message: "code: " + err.Error()}
		return nil
	}
	l.Code = code

	if raw, err := scalarText(w.ContractedRate); err != nil {
		l.Err = &LineError{Kind: KindInvalidInput, Message: "contracted_rate: " + err.Error()}
		return nil
	} else if raw != "" {
		rate, err := normalize.Amount(raw)
		if err != nil {
			l.Err = &LineError{Kind: KindInvalidInput, Message: fmt.Sprintf("contracted_rate %q is not numeric", raw)}
			return nil
		}
		l.ContractedRate = &rate
	}

	if raw, err := scalarText(w.Volume); err != nil {
		l.Err = &LineError{Kind: KindInvalidInput, Message: "volume: " + err.Error()}
	} else if raw != "" {
		v, err := normalize.Count(raw)
		if err != nil {
			l.Err = &LineError{Kind: KindInvalidInput, Message: fmt.Sprintf("volume %q is not a non-negative whole number", raw)}
			return nil
		}
		l.Volume = &v
	}
	return nil
}

// scalarText returns the text of a JSON string or number. Absent and null
// give "".
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("%s is not a string or number", raw)
}
