package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func normalizeFormat(format string) (string, error) {
	switch value := strings.ToLower(strings.TrimSpace(format)); value {
	case "", formatText:
		return formatText, nil
	case formatJSON, formatYAML:
		return value, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected text, json or yaml)", format)
	}
}

// writeStructured renders value as JSON or YAML. YAML goes through the JSON
// encoding so both formats share the same field names.
func writeStructured(w io.Writer, format string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	if format == formatJSON {
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(generic); err != nil {
		return err
	}
	return encoder.Close()
}
