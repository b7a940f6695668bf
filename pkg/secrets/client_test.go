package secrets_test

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/thoughtgears/action-set-secretmanager-secret/pkg/secrets"
)

// fakeSecretManagerServer is an in-process stand-in for the Secret Manager
// service, backed by plain maps. It records CreateSecret requests so tests
// can assert on exactly what the client sent.
type fakeSecretManagerServer struct {
	secretmanagerpb.UnimplementedSecretManagerServiceServer

	mu             sync.Mutex
	secrets        map[string]*secretmanagerpb.Secret
	versions       map[string][][]byte
	createRequests []*secretmanagerpb.CreateSecretRequest
}

func newFakeSecretManagerServer() *fakeSecretManagerServer {
	return &fakeSecretManagerServer{
		secrets:  make(map[string]*secretmanagerpb.Secret),
		versions: make(map[string][][]byte),
	}
}

func (f *fakeSecretManagerServer) GetSecret(_ context.Context, req *secretmanagerpb.GetSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	secret, ok := f.secrets[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "secret %q not found", req.GetName())
	}
	return secret, nil
}

func (f *fakeSecretManagerServer) CreateSecret(_ context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createRequests = append(f.createRequests, req)

	name := fmt.Sprintf("%s/secrets/%s", req.GetParent(), req.GetSecretId())
	if _, ok := f.secrets[name]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "secret %q already exists", name)
	}
	secret := &secretmanagerpb.Secret{
		Name:        name,
		Replication: req.GetSecret().GetReplication(),
		Labels:      req.GetSecret().GetLabels(),
	}
	f.secrets[name] = secret
	return secret, nil
}

func (f *fakeSecretManagerServer) AddSecretVersion(_ context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.secrets[req.GetParent()]; !ok {
		return nil, status.Errorf(codes.NotFound, "secret %q not found", req.GetParent())
	}
	f.versions[req.GetParent()] = append(f.versions[req.GetParent()], req.GetPayload().GetData())
	return &secretmanagerpb.SecretVersion{
		Name: fmt.Sprintf("%s/versions/%d", req.GetParent(), len(f.versions[req.GetParent()])),
	}, nil
}

func (f *fakeSecretManagerServer) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	secretName := strings.TrimSuffix(req.GetName(), "/versions/latest")
	payloads, ok := f.versions[secretName]
	if !ok || len(payloads) == 0 {
		return nil, status.Errorf(codes.NotFound, "no versions for %q", secretName)
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: payloads[len(payloads)-1]},
	}, nil
}

func (f *fakeSecretManagerServer) ListSecrets(_ context.Context, req *secretmanagerpb.ListSecretsRequest) (*secretmanagerpb.ListSecretsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &secretmanagerpb.ListSecretsResponse{}
	for name, secret := range f.secrets {
		if !strings.HasPrefix(name, req.GetParent()+"/secrets/") {
			continue
		}
		// The fake only understands the one filter the client sends.
		if req.GetFilter() != "" && secret.GetLabels()[secrets.ManagedByKey] != secrets.ManagedByValue {
			continue
		}
		resp.Secrets = append(resp.Secrets, secret)
	}
	resp.TotalSize = int32(len(resp.Secrets))
	return resp, nil
}

// setupFakeClient wires a real secretmanager SDK client to the in-process
// fake over a bufconn transport, exercising googleClient end to end.
func setupFakeClient(t *testing.T) (secrets.Client, *fakeSecretManagerServer) {
	t.Helper()
	fake := newFakeSecretManagerServer()

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	secretmanagerpb.RegisterSecretManagerServiceServer(server, fake)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	client, err := secrets.NewGoogleClient(context.Background(), zerolog.Nop(), option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, fake
}

func TestGoogleClient_CreateSetsManagedByLabelAndAutomaticReplication(t *testing.T) {
	// ARRANGE
	client, fake := setupFakeClient(t)
	ctx := context.Background()

	// ACT
	err := client.Create(ctx, testProject, "NEW_KEY")

	// ASSERT
	require.NoError(t, err)
	require.Len(t, fake.createRequests, 1)
	req := fake.createRequests[0]
	assert.Equal(t, "projects/"+testProject, req.GetParent())
	assert.Equal(t, "NEW_KEY", req.GetSecretId())
	assert.Equal(t, secrets.ManagedByValue, req.GetSecret().GetLabels()[secrets.ManagedByKey])
	assert.NotNil(t, req.GetSecret().GetReplication().GetAutomatic())
}

func TestGoogleClient_ExistsClassifiesNotFound(t *testing.T) {
	// ARRANGE
	client, _ := setupFakeClient(t)
	ctx := context.Background()

	// ACT
	exists, err := client.Exists(ctx, testProject, "ABSENT_KEY")

	// ASSERT: NOT_FOUND is data, not an error.
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.Create(ctx, testProject, "PRESENT_KEY"))
	exists, err = client.Exists(ctx, testProject, "PRESENT_KEY")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGoogleClient_AccessLatest(t *testing.T) {
	// ARRANGE
	client, _ := setupFakeClient(t)
	ctx := context.Background()
	require.NoError(t, client.Create(ctx, testProject, "KEY"))

	// A container without versions surfaces the sentinel, not a raw error.
	_, err := client.AccessLatest(ctx, testProject, "KEY")
	require.ErrorIs(t, err, secrets.ErrNoVersion)

	// ACT
	require.NoError(t, client.AddVersion(ctx, testProject, "KEY", "first"))
	require.NoError(t, client.AddVersion(ctx, testProject, "KEY", "second"))
	value, err := client.AccessLatest(ctx, testProject, "KEY")

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestGoogleClient_ListManagedFiltersByLabel(t *testing.T) {
	// ARRANGE
	client, fake := setupFakeClient(t)
	ctx := context.Background()
	require.NoError(t, client.Create(ctx, testProject, "MANAGED_KEY"))

	// A secret created outside the action carries no managed-by label.
	fake.mu.Lock()
	unmanaged := fmt.Sprintf("projects/%s/secrets/UNMANAGED_KEY", testProject)
	fake.secrets[unmanaged] = &secretmanagerpb.Secret{Name: unmanaged}
	fake.mu.Unlock()

	// ACT
	managed, err := client.ListManaged(ctx, testProject)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, []string{"MANAGED_KEY"}, managed)
}

func TestReconcile_AgainstFakeService(t *testing.T) {
	// ARRANGE
	client, _ := setupFakeClient(t)
	ctx := context.Background()
	reconciler := secrets.NewReconciler(client, testProject, zerolog.Nop())

	// Pre-populate one secret that already matches and one that is stale.
	require.NoError(t, client.Create(ctx, testProject, "SAME_KEY"))
	require.NoError(t, client.AddVersion(ctx, testProject, "SAME_KEY", "v-same"))
	require.NoError(t, client.Create(ctx, testProject, "STALE_KEY"))
	require.NoError(t, client.AddVersion(ctx, testProject, "STALE_KEY", "v-old"))

	entries := []secrets.Entry{
		{Key: "NEW_KEY", Value: "v-new"},
		{Key: "STALE_KEY", Value: "v-fresh"},
		{Key: "SAME_KEY", Value: "v-same"},
	}

	// ACT
	result, err := reconciler.Reconcile(ctx, entries)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW_KEY", "STALE_KEY"}, result.UpdatedKeys)

	value, err := client.AccessLatest(ctx, testProject, "NEW_KEY")
	require.NoError(t, err)
	assert.Equal(t, "v-new", value)

	value, err = client.AccessLatest(ctx, testProject, "STALE_KEY")
	require.NoError(t, err)
	assert.Equal(t, "v-fresh", value)
}
