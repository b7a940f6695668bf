package secrets

// Entry is a single desired secret, parsed from the action's input.
type Entry struct {
	Key   string
	Value string
}

// Result reports the outcome of a reconciliation run. UpdatedKeys holds the
// keys that were created or received a new version, in the order they were
// processed. Keys whose stored value already matched are not included.
type Result struct {
	UpdatedKeys []string
}
