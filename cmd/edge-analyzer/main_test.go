package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-analyzer/internal/auth"
	"edge-analyzer/internal/model"
)

const testFleet = `
cameraDevices:
  - id: cam-1
    factoryId: plant-a
    imageEndpoint: http://camera.local/snapshot
    timeZoneId: Asia/Almaty
    captureTimeInterval: 5
    localFolder: /data/staging
    outputFolder: /data/output
    aiModules:
      - name: ppe
        scoringEndpoint: http://ppe/score
        tags:
          - name: helmet
            probability: 0.8
            analyzeTimeInterval: 10
`

func setupEnv(t *testing.T, fleet string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fleet), 0o600), "Setup: failed to write fleet")

	t.Setenv("STORAGE_ACCOUNT_NAME", "plantstore")
	t.Setenv("STORAGE_CONTAINER_NAME", "images")
	t.Setenv("FLEET_CONFIG", path)
	t.Setenv("JWT_ACCESS_SECRET", "test-secret")
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	setupEnv(t, testFleet)

	out, err := execute("validate")
	require.NoError(t, err)
	assert.Contains(t, out, "1 cameras, 1 (camera, module, tag) units")
	assert.Contains(t, out, "plant-a/cam-1 every 5 ticks (Asia/Almaty)")
	assert.Contains(t, out, "ppe/helmet >= 0.80 every 10 ticks")
}

func TestValidateCommandRejectsBrokenFleet(t *testing.T) {
	setupEnv(t, strings.Replace(testFleet, "analyzeTimeInterval: 10", "analyzeTimeInterval: 0", 1))

	_, err := execute("validate")
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t, testFleet)

	out, err := execute("token", "--subject", "ops", "--role", "OPERATOR")
	require.NoError(t, err)

	principal, err := auth.NewParser("test-secret").Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", principal.Subject)
	assert.Equal(t, model.RoleOperator, principal.Role)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	setupEnv(t, testFleet)

	_, err := execute("token", "--role", "ADMIN")
	require.Error(t, err)
}
