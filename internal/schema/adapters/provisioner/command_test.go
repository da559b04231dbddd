package provisioner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testParams() lifecycle.ProvisionParams {
	return lifecycle.ProvisionParams{
		ServiceName:    "demo-search",
		SKU:            "basic",
		ReplicaCount:   1,
		PartitionCount: 2,
		Region:         "westeurope",
		Parameters:     map[string]string{"resource-group": "rg-search"},
	}
}

func TestCommandProvisioner_Provision(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "provision.sh", `
cat > "$1/stdin.json"
env | grep '^INDEXVAULT_' | sort > "$1/env.txt"
echo "creating service..."
echo '{"serviceName":"demo-search","endpoint":"https://demo-search.search.windows.net"}'
`)

	p := NewCommandProvisioner(config.ProvisioningConfig{
		Command: script,
		Args:    []string{dir},
		Timeout: 10 * time.Second,
	}, nil)

	instance, err := p.Provision(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "demo-search", instance.Name)
	assert.Equal(t, "https://demo-search.search.windows.net", instance.Endpoint)
	assert.Equal(t, "basic", instance.SKU)
	assert.Equal(t, 2, instance.PartitionCount)

	stdin, err := os.ReadFile(filepath.Join(dir, "stdin.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"serviceName": "demo-search",
		"sku": "basic",
		"replicaCount": 1,
		"partitionCount": 2,
		"region": "westeurope",
		"parameters": {"resource-group": "rg-search"}
	}`, string(stdin))

	env, err := os.ReadFile(filepath.Join(dir, "env.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "INDEXVAULT_ACTION=provision")
	assert.Contains(t, string(env), "INDEXVAULT_SERVICE_NAME=demo-search")
	assert.Contains(t, string(env), "INDEXVAULT_PARTITION_COUNT=2")
	assert.Contains(t, string(env), "INDEXVAULT_PARAM_RESOURCE_GROUP=rg-search")
}

func TestCommandProvisioner_ProvisionErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "non-zero exit", body: "echo 'quota exceeded' >&2\nexit 3\n", wantErr: "quota exceeded"},
		{name: "no output", body: "echo done\n", wantErr: "no service description"},
		{name: "no endpoint", body: `echo '{"serviceName":"demo-search"}'` + "\n", wantErr: "no endpoint"},
		{name: "wrong service", body: `echo '{"serviceName":"other","endpoint":"https://other"}'` + "\n", wantErr: "expected \"demo-search\""},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := writeScript(t, dir, "script"+string(rune('a'+i))+".sh", tt.body)
			p := NewCommandProvisioner(config.ProvisioningConfig{Command: script}, nil)

			_, err := p.Provision(context.Background(), testParams())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCommandProvisioner_Timeout(t *testing.T) {
	script := writeScript(t, t.TempDir(), "slow.sh", "exec sleep 5\n")
	p := NewCommandProvisioner(config.ProvisioningConfig{Command: script, Timeout: 100 * time.Millisecond}, nil)

	_, err := p.Provision(context.Background(), testParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandProvisioner_Deprovision(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "deprovision.sh", `
echo "$INDEXVAULT_ACTION $INDEXVAULT_SERVICE_NAME" > "$1/called.txt"
`)

	p := NewCommandProvisioner(config.ProvisioningConfig{
		DeprovisionCommand: script,
		DeprovisionArgs:    []string{dir},
	}, nil)
	require.NoError(t, p.Deprovision(context.Background(), "demo-search"))

	called, err := os.ReadFile(filepath.Join(dir, "called.txt"))
	require.NoError(t, err)
	assert.Equal(t, "deprovision demo-search\n", string(called))
}

func TestCommandProvisioner_NotConfigured(t *testing.T) {
	p := NewCommandProvisioner(config.ProvisioningConfig{}, nil)

	_, err := p.Provision(context.Background(), testParams())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, p.Deprovision(context.Background(), "demo-search"), ErrNotConfigured)
}

func TestParseInstance(t *testing.T) {
	instance, err := parseInstance([]byte("{\n  \"serviceName\": \"a\",\n  \"endpoint\": \"https://a\"\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://a", instance.Endpoint)

	instance, err = parseInstance([]byte("{\"step\":1}\nnot json\n{\"serviceName\":\"b\",\"endpoint\":\"https://b\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, "b", instance.Name)
}
