package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jack2012aa/farm-iot/errors"
)

// maxConfigSize caps the configuration file size.
const maxConfigSize = 10 << 20

//go:embed schema.json
var schemaBytes []byte

// Load reads a configuration file, checks it against the embedded JSON
// Schema, decodes it strictly and validates the result.
func Load(path string) (*Config, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "file read")
	}
	return Parse(data)
}

// Parse runs the schema check, strict decoding and validation on a raw
// configuration document.
func Parse(data []byte) (*Config, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := SafeUnmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config", "Parse", "decoding")
	}
	return &cfg, nil
}

// checkSchema validates the raw document against the embedded schema.
func checkSchema(data []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapInvalid(err, "config", "checkSchema", "schema validation")
	}

	if !result.Valid() {
		var sb strings.Builder
		sb.WriteString("configuration does not match schema:")
		for _, desc := range result.Errors() {
			fmt.Fprintf(&sb, "\n  - %s: %s", desc.Field(), desc.Description())
		}
		return errors.WrapFatal(
			fmt.Errorf("%s", sb.String()),
			"config", "checkSchema", "schema validation")
	}
	return nil
}

// readConfigFile reads the file after basic sanity checks.
func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("empty config path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}
