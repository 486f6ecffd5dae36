package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// EncodeRecord serializes a record to its canonical byte form prior to
// encryption. Fields are emitted in declaration order with timestamps in
// RFC 3339 UTC, so encoding the same logical record twice yields identical
// bytes and ciphertext variation comes from the nonce alone.
func EncodeRecord(r PlainRecord) ([]byte, error) {
	if err := validateRecord(r); err != nil {
		return nil, err
	}
	r.UpdatedAt = r.UpdatedAt.UTC()

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return data, nil
}

// DecodeRecord parses canonical bytes back into a record. Any structural
// defect fails with ErrMalformedRecord; nothing is guessed or defaulted.
func DecodeRecord(data []byte) (PlainRecord, error) {
	var r PlainRecord

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return PlainRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return PlainRecord{}, fmt.Errorf("%w: trailing data", ErrMalformedRecord)
	}

	if err := validateRecord(r); err != nil {
		return PlainRecord{}, err
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func validateRecord(r PlainRecord) error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: non-positive id %d", ErrMalformedRecord, r.ID)
	}
	if r.Site == "" {
		return fmt.Errorf("%w: empty site", ErrMalformedRecord)
	}
	if r.Username == "" {
		return fmt.Errorf("%w: empty username", ErrMalformedRecord)
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: missing updatedAt", ErrMalformedRecord)
	}
	for _, f := range []string{r.Site, r.Username, r.Password, r.Notes} {
		if !utf8.ValidString(f) {
			return fmt.Errorf("%w: invalid utf-8 in text field", ErrMalformedRecord)
		}
	}
	return nil
}
