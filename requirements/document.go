package requirements

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/twmb/murmur3"
)

// UnmarshalJSON accepts the wrapped form {"requirements": [...]} as well as
// the bare array the provider's account-requirements endpoint returns.
func (d *Document) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty document")
	}

	switch data[0] {
	case '[':
		var reqs []Requirement
		if err := json.Unmarshal(data, &reqs); err != nil {
			return err
		}
		d.Requirements = reqs
		return nil
	case '{':
		type wrapped Document
		var w wrapped
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*d = Document(w)
		return nil
	default:
		return fmt.Errorf("expected object or array, got %q", data[0])
	}
}

// Decode reads a JSON document from r.
func Decode(r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read requirements descriptor: %w", err)
	}
	return DecodeBytes(raw)
}

// DecodeBytes decodes a JSON document.
func DecodeBytes(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, &MalformedDescriptorError{Err: err}
	}
	return doc, nil
}

// Types returns the recipient types in document order.
func (d Document) Types() []string {
	types := make([]string, 0, len(d.Requirements))
	for _, r := range d.Requirements {
		types = append(types, r.Type)
	}
	return types
}

// Select returns a document holding only the named recipient type, so that
// Parse picks it.
func (d Document) Select(recipientType string) (Document, error) {
	for _, r := range d.Requirements {
		if r.Type == recipientType {
			return Document{Requirements: []Requirement{r}}, nil
		}
	}
	return Document{}, fmt.Errorf("%w: %q (offered: %v)", ErrUnknownRecipientType, recipientType, d.Types())
}

// Checksum is a murmur3-128 digest of the requirement's JSON encoding. Two
// fetches of an unchanged recipient type produce the same checksum.
func Checksum(req Requirement) string {
	return digest(req)
}

// Checksum digests the whole document, all recipient types included.
func (d Document) Checksum() string {
	return digest(d)
}

func digest(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		// every field of Document is marshalable
		panic(err)
	}
	h1, h2 := murmur3.Sum128(raw)
	return fmt.Sprintf("%016x%016x", h1, h2)
}
