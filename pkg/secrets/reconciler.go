package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconcileError reports a fatal failure while processing a single entry.
// Key names the secret being processed and Step the operation that failed.
type ReconcileError struct {
	Key  string
	Step string
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("secret %q: %s failed: %v", e.Key, e.Step, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Reconciler drives the desired secret entries to their stored state:
// missing secrets are created, stale values get a new version and matching
// values are left alone. Entries are processed strictly in order, one at a
// time, and the first fatal error aborts the remaining entries.
type Reconciler struct {
	client    Client
	projectID string
	logger    zerolog.Logger
}

// NewReconciler creates a reconciler for a single project.
func NewReconciler(client Client, projectID string, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		client:    client,
		projectID: projectID,
		logger: logger.With().
			Str("component", "Reconciler").
			Str("project_id", projectID).
			Str("run_id", uuid.NewString()).
			Logger(),
	}
}

// Reconcile processes each entry in order and returns the keys that were
// created or updated. On any fatal error it returns a *ReconcileError and no
// Result; entries after the failing one are never attempted, and remote
// changes already made are not rolled back.
func (r *Reconciler) Reconcile(ctx context.Context, entries []Entry) (*Result, error) {
	result := &Result{UpdatedKeys: make([]string, 0, len(entries))}

	for _, entry := range entries {
		updated, err := r.reconcileEntry(ctx, entry)
		if err != nil {
			return nil, err
		}
		if updated {
			result.UpdatedKeys = append(result.UpdatedKeys, entry.Key)
		}
	}

	r.logger.Info().Int("updated", len(result.UpdatedKeys)).Int("total", len(entries)).Msg("✅ Reconciliation complete.")
	return result, nil
}

// reconcileEntry applies one entry and reports whether a write happened.
func (r *Reconciler) reconcileEntry(ctx context.Context, entry Entry) (bool, error) {
	exists, err := r.client.Exists(ctx, r.projectID, entry.Key)
	if err != nil {
		return false, &ReconcileError{Key: entry.Key, Step: "existence check", Err: err}
	}

	if !exists {
		return r.createSecret(ctx, entry)
	}
	return r.updateSecret(ctx, entry)
}

// createSecret creates the container and adds the initial version. If the
// create succeeds but the add-version fails, the container is left with zero
// versions; a re-run repairs it through the no-version branch of
// updateSecret, so no compensating delete is attempted.
func (r *Reconciler) createSecret(ctx context.Context, entry Entry) (bool, error) {
	r.logger.Info().Str("secret", entry.Key).Msg("Secret not found, creating it.")

	if err := r.client.Create(ctx, r.projectID, entry.Key); err != nil {
		return false, &ReconcileError{Key: entry.Key, Step: "create", Err: err}
	}
	if err := r.client.AddVersion(ctx, r.projectID, entry.Key, entry.Value); err != nil {
		return false, &ReconcileError{Key: entry.Key, Step: "add initial version", Err: err}
	}
	return true, nil
}

// updateSecret compares the latest stored value against the desired one and
// adds a new version only when they differ or the current state cannot be
// verified.
func (r *Reconciler) updateSecret(ctx context.Context, entry Entry) (bool, error) {
	current, err := r.client.AccessLatest(ctx, r.projectID, entry.Key)
	switch {
	case err == nil:
		if current == entry.Value {
			r.logger.Info().Str("secret", entry.Key).Msg("Value unchanged, skipping.")
			return false, nil
		}
		r.logger.Info().Str("secret", entry.Key).Msg("Value differs, adding new version.")
	case errors.Is(err, ErrNoVersion):
		r.logger.Warn().Str("secret", entry.Key).Msg("Secret exists without an accessible version, adding one.")
	default:
		return false, &ReconcileError{Key: entry.Key, Step: "access latest version", Err: err}
	}

	if err := r.client.AddVersion(ctx, r.projectID, entry.Key, entry.Value); err != nil {
		return false, &ReconcileError{Key: entry.Key, Step: "add version", Err: err}
	}
	return true, nil
}
