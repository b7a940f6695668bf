// This binary is the entrypoint of the set-secretmanager-secret GitHub
// Action. It reads the declared inputs from the runner environment,
// reconciles the desired secret pairs against Google Secret Manager and
// publishes the list of changed keys as the 'updated_secrets' output.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thoughtgears/action-set-secretmanager-secret/internal/githubaction"
	"github.com/thoughtgears/action-set-secretmanager-secret/pkg/secrets"
)

func main() {
	if err := run(); err != nil {
		githubaction.Errorf("%v", err)
		log.Error().Err(err).Msg("Action failed.")
		os.Exit(1)
	}
}

func run() error {
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	inputs := githubaction.ReadInputs()
	if err := inputs.Validate(); err != nil {
		return err
	}
	if inputs.LogLevel != "" {
		level, err := zerolog.ParseLevel(inputs.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid 'log_level' input %q: %w", inputs.LogLevel, err)
		}
		logger = logger.Level(level)
	}

	entries, err := loadEntries(inputs)
	if err != nil {
		return err
	}
	// Mask every desired value before any call that might echo it.
	for _, entry := range entries {
		githubaction.Mask(entry.Value)
	}

	ctx := context.Background()
	client, err := secrets.NewGoogleClient(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	reconciler := secrets.NewReconciler(client, inputs.ProjectID, logger)
	result, err := reconciler.Reconcile(ctx, entries)
	if err != nil {
		return err
	}

	if err = githubaction.SetOutput("updated_secrets", strings.Join(result.UpdatedKeys, ",")); err != nil {
		return err
	}
	if err = writeSummary(inputs.ProjectID, entries, result); err != nil {
		return err
	}

	managed, err := client.ListManaged(ctx, inputs.ProjectID)
	if err != nil {
		// The reconciliation itself succeeded; a listing failure only
		// costs us the informational count.
		logger.Warn().Err(err).Msg("Could not list managed secrets.")
		return nil
	}
	logger.Info().Int("managed_secrets", len(managed)).Msg("Secrets managed by this action in the project.")
	return nil
}

// loadEntries resolves the inline and file forms of the secrets declaration.
// Validate has already guaranteed exactly one of them is set.
func loadEntries(inputs githubaction.Inputs) ([]secrets.Entry, error) {
	if inputs.SecretsFile != "" {
		return githubaction.SecretsFromFile(inputs.SecretsFile)
	}
	return secrets.ParseList(inputs.Secrets)
}

func writeSummary(projectID string, entries []secrets.Entry, result *secrets.Result) error {
	lines := []string{
		"### Secret Manager reconciliation",
		"",
		fmt.Sprintf("Project: `%s`", projectID),
		fmt.Sprintf("Declared: %d, updated: %d", len(entries), len(result.UpdatedKeys)),
	}
	for _, key := range result.UpdatedKeys {
		lines = append(lines, fmt.Sprintf("- `%s`", key))
	}
	return githubaction.Summary(lines...)
}
