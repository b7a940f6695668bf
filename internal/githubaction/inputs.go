// Package githubaction handles the plumbing between this binary and the
// GitHub Actions runner: declared inputs arrive as INPUT_* environment
// variables, outputs and summaries are appended to runner-provided files, and
// log annotations use the workflow command syntax.
package githubaction

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thoughtgears/action-set-secretmanager-secret/pkg/secrets"
)

// Inputs holds the action's declared inputs, as provided by the runner.
type Inputs struct {
	ProjectID   string
	Secrets     string
	SecretsFile string
	LogLevel    string
}

// ReadInputs collects the action's inputs from the environment. The runner
// exposes each declared input as INPUT_<UPPERCASED_NAME>.
func ReadInputs() Inputs {
	return Inputs{
		ProjectID:   strings.TrimSpace(os.Getenv("INPUT_PROJECT_ID")),
		Secrets:     os.Getenv("INPUT_SECRETS"),
		SecretsFile: strings.TrimSpace(os.Getenv("INPUT_SECRETS_FILE")),
		LogLevel:    strings.TrimSpace(os.Getenv("INPUT_LOG_LEVEL")),
	}
}

// Validate checks that the required inputs are present and consistent.
func (in Inputs) Validate() error {
	if in.ProjectID == "" {
		return fmt.Errorf("the 'project_id' input is required")
	}
	hasInline := strings.TrimSpace(in.Secrets) != ""
	hasFile := in.SecretsFile != ""
	if !hasInline && !hasFile {
		return fmt.Errorf("one of the 'secrets' or 'secrets_file' inputs is required")
	}
	if hasInline && hasFile {
		return fmt.Errorf("the 'secrets' and 'secrets_file' inputs are mutually exclusive")
	}
	return nil
}

// SecretsFromFile reads the YAML secrets file form of the declaration: a flat
// mapping of key to value. Declaration order is preserved, and keys are
// validated the same way as the inline form.
func SecretsFromFile(path string) ([]secrets.Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %q: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %q: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("secrets file %q must contain a mapping of key to value", path)
	}

	// Mapping content alternates key node, value node. Duplicate keys and
	// non-scalar values are rejected up front, mirroring the inline form's
	// all-or-nothing validation.
	entries := make([]secrets.Entry, 0, len(mapping.Content)/2)
	seen := make(map[string]struct{}, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := strings.TrimSpace(mapping.Content[i].Value)
		if key == "" {
			return nil, fmt.Errorf("secrets file %q contains an empty key", path)
		}
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("secrets file %q declares key %q more than once", path, key)
		}
		seen[key] = struct{}{}

		valueNode := mapping.Content[i+1]
		if valueNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("secrets file %q: value for key %q must be a scalar", path, key)
		}
		entries = append(entries, secrets.Entry{
			Key:   key,
			Value: strings.TrimSpace(valueNode.Value),
		})
	}
	return entries, nil
}
