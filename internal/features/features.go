// Package features holds the demo feature modules installed by the arbor
// service and the helpers they share.
package features

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeStrict decodes a generic JSON value into out. Every field of out must
// be present in input and carry the right JSON type; numbers are not parsed
// from strings.
func DecodeStrict(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "json",
		ErrorUnset: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("invalid API response: %w", err)
	}
	return nil
}
