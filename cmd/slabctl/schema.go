package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of simulate --json output",
	Long: `The schema command prints a JSON schema describing the document that
"slabctl simulate --json" writes, for dashboards and scripts that consume it.

Example:
  slabctl schema
  slabctl schema --out build/simresult.schema.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchema(schemaOut)
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this path instead of stdout")
	rootCmd.AddCommand(schemaCmd)
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(SimResult))
	schema.Title = "slabctl simulation result"
	schema.Description = "Output of slabctl simulate --json"
	return schema
}

func runSchema(outPath string) error {
	data, err := json.MarshalIndent(buildSchema(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal schema")
	}
	data = append(data, '\n')

	if outPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.Wrap(err, "create schema directory")
	}
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrap(err, "write temp schema")
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return errors.Wrap(err, "replace schema")
	}
	printVerbose("Schema written to %s\n", outPath)
	return nil
}
