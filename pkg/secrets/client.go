package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ManagedByLabel is attached to every secret this action creates, so the
// secrets it owns can be found again later.
const (
	ManagedByKey   = "managed-by"
	ManagedByValue = "action-set-secretmanager-secret"
)

// ErrNoVersion is returned by AccessLatest when the secret exists but has no
// accessible latest version (e.g. created but never given a payload).
var ErrNoVersion = errors.New("secret has no latest version")

// Client defines the contract for the secret storage backing the reconciler.
// NOT_FOUND conditions are classified here so the reconciler never inspects
// transport error codes itself.
type Client interface {
	Exists(ctx context.Context, projectID, key string) (bool, error)
	Create(ctx context.Context, projectID, key string) error
	AddVersion(ctx context.Context, projectID, key, value string) error
	AccessLatest(ctx context.Context, projectID, key string) (string, error)
	ListManaged(ctx context.Context, projectID string) ([]string, error)
	Close() error
}

// googleClient implements the Client interface for Google Secret Manager.
type googleClient struct {
	client *secretmanager.Client
	logger zerolog.Logger
}

// NewGoogleClient creates a new client for Google Secret Manager. Credentials
// come from the ambient environment (Application Default Credentials).
func NewGoogleClient(ctx context.Context, logger zerolog.Logger, opts ...option.ClientOption) (Client, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}
	return &googleClient{
		client: client,
		logger: logger.With().Str("component", "SecretManagerClient").Logger(),
	}, nil
}

func secretPath(projectID, key string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", projectID, key)
}

// Exists reports whether the secret container exists. A NOT_FOUND response is
// data, not an error; any other failure is returned to the caller.
func (c *googleClient) Exists(ctx context.Context, projectID, key string) (bool, error) {
	_, err := c.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{
		Name: secretPath(projectID, key),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check for secret %q: %w", key, err)
	}
	return true, nil
}

// Create creates the secret container with automatic replication and the
// managed-by label. It does not add a version.
func (c *googleClient) Create(ctx context.Context, projectID, key string) error {
	_, err := c.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   fmt.Sprintf("projects/%s", projectID),
		SecretId: key,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
			Labels: map[string]string{ManagedByKey: ManagedByValue},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create secret %q: %w", key, err)
	}
	c.logger.Info().Str("secret", key).Msg("Created secret container.")
	return nil
}

// AddVersion adds the value's UTF-8 bytes as the newest version of the secret.
func (c *googleClient) AddVersion(ctx context.Context, projectID, key, value string) error {
	result, err := c.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  secretPath(projectID, key),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return fmt.Errorf("failed to add version to secret %q: %w", key, err)
	}
	c.logger.Info().Str("secret", key).Str("version", result.Name).Msg("Added secret version.")
	return nil
}

// AccessLatest returns the decoded payload of the secret's latest version.
// A NOT_FOUND response maps to ErrNoVersion so the reconciler can branch on
// it without looking at grpc codes.
func (c *googleClient) AccessLatest(ctx context.Context, projectID, key string) (string, error) {
	resp, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretPath(projectID, key) + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("secret %q: %w", key, ErrNoVersion)
		}
		return "", fmt.Errorf("failed to access latest version of secret %q: %w", key, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret %q: %w", key, ErrNoVersion)
	}
	return string(resp.GetPayload().GetData()), nil
}

// ListManaged returns the IDs of all secrets in the project that carry this
// action's managed-by label.
func (c *googleClient) ListManaged(ctx context.Context, projectID string) ([]string, error) {
	var managed []string
	it := c.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent: fmt.Sprintf("projects/%s", projectID),
		Filter: fmt.Sprintf("labels.%s=%s", ManagedByKey, ManagedByValue),
	})
	for {
		secret, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list managed secrets: %w", err)
		}
		// Name is "projects/<number>/secrets/<id>"; keep only the id.
		name := secret.GetName()
		if lastSlash := strings.LastIndex(name, "/"); lastSlash != -1 {
			name = name[lastSlash+1:]
		}
		managed = append(managed, name)
	}
	return managed, nil
}

func (c *googleClient) Close() error {
	return c.client.Close()
}
