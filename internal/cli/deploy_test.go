package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// backendArgs points a command at a throwaway local state directory.
func backendArgs(t *testing.T) []string {
	t.Helper()
	return []string{"--backend", "local", "--backend-config", "path=" + t.TempDir()}
}

func TestNewDeployCmd_Flags(t *testing.T) {
	cmd := newDeployCmd()

	if !strings.HasPrefix(cmd.Use, "deploy") {
		t.Errorf("expected use to start with 'deploy', got '%s'", cmd.Use)
	}

	for _, flag := range []string{"param", "parameters-file", "auto-approve", "parallelism", "backend", "backend-config"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag", flag)
		}
	}
}

func TestDeployCmd_CreatesStack(t *testing.T) {
	path := writeTemplate(t, validTemplate)
	stateDir := t.TempDir()

	cmd := newDeployCmd()
	cmd.SetArgs([]string{"assets", path, "--auto-approve",
		"--backend", "local", "--backend-config", "path=" + stateDir})

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// The stack state landed in the backend directory.
	stateFile := filepath.Join(stateDir, "stacks", "assets", "stack.state.json")
	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatalf("expected state file, got: %v", err)
	}
	if !strings.Contains(string(data), `"status": "complete"`) {
		t.Errorf("expected complete status in state, got: %s", data)
	}
}

func TestDeployCmd_MissingParameter(t *testing.T) {
	path := writeTemplate(t, `
parameters:
  Required:
    type: string
resources:
  Thing:
    kind: thing
    properties:
      value: !Ref Required
`)

	cmd := newDeployCmd()
	cmd.SetArgs(append([]string{"things", path, "--auto-approve"}, backendArgs(t)...))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing required parameter")
	}
	if !strings.Contains(err.Error(), "Required") {
		t.Errorf("expected parameter name in error, got: %v", err)
	}
}

func TestDeployCmd_ParamFlag(t *testing.T) {
	path := writeTemplate(t, `
parameters:
  Environment:
    type: string
resources:
  Thing:
    kind: thing
    properties:
      env: !Ref Environment
`)
	stateDir := t.TempDir()

	cmd := newDeployCmd()
	cmd.SetArgs([]string{"things", path, "--auto-approve",
		"--param", "Environment=staging",
		"--backend", "local", "--backend-config", "path=" + stateDir})
	cmd.SetOut(&bytes.Buffer{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(stateDir, "stacks", "things", "stack.state.json"))
	if err != nil {
		t.Fatalf("expected state file, got: %v", err)
	}
	if !strings.Contains(string(data), "staging") {
		t.Errorf("expected bound parameter value in state, got: %s", data)
	}
}

func TestDeployCmd_InvalidTemplate(t *testing.T) {
	path := writeTemplate(t, `resources: {}`)

	cmd := newDeployCmd()
	cmd.SetArgs(append([]string{"empty", path, "--auto-approve"}, backendArgs(t)...))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for empty resources")
	}
}

func TestCollectParameters(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "params.yml")
	if err := os.WriteFile(file, []byte("Environment: prod\nReplicas: 3\n"), 0644); err != nil {
		t.Fatalf("failed to write params file: %v", err)
	}

	params, err := collectParameters([]string{"Environment=staging"}, file)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Inline flag wins over the file.
	if params["Environment"] != "staging" {
		t.Errorf("expected inline override, got: %v", params["Environment"])
	}
	if params["Replicas"] != float64(3) {
		t.Errorf("expected numeric value from file, got: %T %v", params["Replicas"], params["Replicas"])
	}
}

func TestCollectParameters_EnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prod.env")
	if err := os.WriteFile(file, []byte("# prod settings\nEnvironment=prod\nApiKey=\"s3cret\"\n"), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	params, err := collectParameters(nil, file)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if params["Environment"] != "prod" {
		t.Errorf("expected env file value, got: %v", params["Environment"])
	}
	if params["ApiKey"] != "s3cret" {
		t.Errorf("expected unquoted value, got: %v", params["ApiKey"])
	}
}

func TestCollectParameters_BadFlag(t *testing.T) {
	if _, err := collectParameters([]string{"no-equals-sign"}, ""); err == nil {
		t.Error("expected error for malformed --param")
	}
}
