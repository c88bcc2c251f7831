package ioutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned when a body exceeds the permitted size.
var ErrTooLarge = errors.New("body too large")

// ReadLimited reads all of r, failing with ErrTooLarge instead of silently
// truncating when it holds more than limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return body, nil
}

// DecodeJSON reads a single JSON value of at most limit bytes from r into v.
func DecodeJSON(r io.Reader, limit int64, v any) error {
	body, err := ReadLimited(r, limit)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("decoding JSON body: trailing data")
	}
	return nil
}
