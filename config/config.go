package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadYAML decodes the YAML file into v. Fields unknown to v are errors.
func ReadYAML(file string, v interface{}) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("error reading yaml config file: %w", err)
	}
	return DecodeYAML(b, v)
}

// DecodeYAML decodes b into v. Fields unknown to v are errors and an
// empty document leaves v untouched.
func DecodeYAML(b []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error decoding config from yaml: %w", err)
	}
	return nil
}
