package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var schemaJSON []byte

// printer is a default English printer for localized error messages.
var printer = message.NewPrinter(language.English)

// validate checks the raw YAML policy document against the embedded
// schema before it is decoded into Config, so typos and wrong types fail
// at startup with their paths.
func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so the instance only contains JSON value
	// types, which is what the validator operates on.
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalizing config: %w", err)
	}
	var instance any
	if err := json.Unmarshal(jsonDoc, &instance); err != nil {
		return fmt.Errorf("normalizing config: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("invalid config: %s", strings.Join(validationErrors(err), "; "))
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	var schemaValue any
	if err := json.Unmarshal(schemaJSON, &schemaValue); err != nil {
		return nil, fmt.Errorf("parsing embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", schemaValue); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return schema, nil
}

// validationErrors flattens a validation failure into path-prefixed,
// human-readable messages.
func validationErrors(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	var msgs []string
	collectErrors(verr, &msgs)
	if len(msgs) == 0 {
		msgs = append(msgs, verr.Error())
	}
	return msgs
}

// collectErrors gathers leaf errors (those without causes).
func collectErrors(err *jsonschema.ValidationError, out *[]string) {
	if err.ErrorKind != nil && len(err.Causes) == 0 {
		msg := err.ErrorKind.LocalizedString(printer)
		if !strings.HasPrefix(msg, "$ref ") && !strings.HasPrefix(msg, "doesn't validate with") {
			if len(err.InstanceLocation) > 0 {
				msg = "/" + strings.Join(err.InstanceLocation, "/") + ": " + msg
			}
			*out = append(*out, msg)
		}
	}
	for _, cause := range err.Causes {
		collectErrors(cause, out)
	}
}
