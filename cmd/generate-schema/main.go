// Command generate-schema writes the JSON Schema of the FTPPlus server
// configuration, for editor completion and validation of config.yaml.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/ftpplus/pkg/config"
)

const schemaID = "https://github.com/marmos91/ftpplus/config.schema.json"

func main() {
	output := flag.String("o", "ftpplus.schema.json", `Output file ("-" for stdout)`)
	flag.Parse()

	w := io.Writer(os.Stdout)
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", *output, err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if err := generate(w); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if *output != "-" {
		fmt.Printf("FTPPlus config schema written to %s\n", *output)
	}
}

// generate reflects config.Config into a schema keyed like config.yaml and
// writes it indented to w.
func generate(w io.Writer) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = jsonschema.ID(schemaID)
	schema.Title = "FTPPlus Configuration"
	schema.Description = "Server configuration for FTPPlus: storage backend, upload limits, " +
		"encryption key, malware scanner, TCP adapter and metrics. " +
		"Every key can be overridden with an FTPPLUS_ environment variable, " +
		"e.g. FTPPLUS_ADAPTERS_TCP_PORT."
	schema.Version = "1.0.0"

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schema); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return nil
}
