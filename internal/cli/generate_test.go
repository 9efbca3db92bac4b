package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const networkingTemplate = `
resources:
  Vpc:
    kind: network
    properties:
      cidr: 10.0.0.0/16
outputs:
  VpcId:
    value: !Ref Vpc
    export: network-vpc-id
`

const appTemplate = `
parameters:
  ApiKey:
    type: string
resources:
  Handler:
    kind: function
    properties:
      vpc: !ImportValue network-vpc-id
      key: !Ref ApiKey
`

func writeWorkflowFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	networking := filepath.Join(dir, "networking.yml")
	if err := os.WriteFile(networking, []byte(networkingTemplate), 0644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	app := filepath.Join(dir, "app.yml")
	if err := os.WriteFile(app, []byte(appTemplate), 0644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	return networking, app
}

func TestGenerateWorkflowCmd_GitHubActions(t *testing.T) {
	networking, app := writeWorkflowFixtures(t)
	outDir := t.TempDir()
	outPath := filepath.Join(outDir, "deploy.yml")
	tdPath := filepath.Join(outDir, "teardown.yml")

	cmd := newGenerateCmd()
	cmd.SetArgs([]string{
		"workflow", app, networking,
		"--type", "github-actions",
		"--output", outPath,
		"--teardown-output", tdPath,
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("expected workflow file: %v", err)
	}
	output := string(data)

	if !strings.Contains(output, "deploy-networking:") || !strings.Contains(output, "deploy-app:") {
		t.Errorf("expected one job per stack, got:\n%s", output)
	}
	if !strings.Contains(output, "needs: [deploy-networking]") {
		t.Errorf("expected app to depend on networking, got:\n%s", output)
	}
	if !strings.Contains(output, "--param ApiKey=$API_KEY") {
		t.Errorf("expected required parameter wired as --param flag, got:\n%s", output)
	}
	if !strings.Contains(output, "API_KEY: ${{ vars.API_KEY }}") {
		t.Errorf("expected env var binding for required parameter, got:\n%s", output)
	}

	teardown, err := os.ReadFile(tdPath)
	if err != nil {
		t.Fatalf("expected teardown file: %v", err)
	}
	if !strings.Contains(string(teardown), "stackctl destroy networking --auto-approve") {
		t.Errorf("expected teardown destroy command, got:\n%s", teardown)
	}
}

func TestGenerateWorkflowCmd_NoTeardown(t *testing.T) {
	networking, _ := writeWorkflowFixtures(t)
	outDir := t.TempDir()
	outPath := filepath.Join(outDir, "deploy.yml")
	tdPath := filepath.Join(outDir, "teardown.yml")

	cmd := newGenerateCmd()
	cmd.SetArgs([]string{
		"workflow", networking,
		"--type", "gitlab-ci",
		"--output", outPath,
		"--teardown-output", tdPath,
		"--teardown=false",
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if _, err := os.Stat(tdPath); !os.IsNotExist(err) {
		t.Error("expected no teardown file")
	}
}

func TestGenerateWorkflowCmd_InvalidType(t *testing.T) {
	networking, _ := writeWorkflowFixtures(t)

	cmd := newGenerateCmd()
	cmd.SetArgs([]string{"workflow", networking, "--type", "jenkins"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for invalid type")
	}
	if !strings.Contains(err.Error(), "github-actions") {
		t.Errorf("expected valid values in error, got: %v", err)
	}
}

func TestGenerateWorkflowCmd_InvalidTemplate(t *testing.T) {
	path := writeTemplate(t, `
resources:
  Broken:
    properties: {}
`)

	cmd := newGenerateCmd()
	cmd.SetArgs([]string{"workflow", path, "--type", "github-actions"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for invalid template")
	}
}

func TestStackNameFromFile(t *testing.T) {
	if got := stackNameFromFile("stacks/networking.yml"); got != "networking" {
		t.Errorf("expected 'networking', got %q", got)
	}
	if got := stackNameFromFile("app.json"); got != "app" {
		t.Errorf("expected 'app', got %q", got)
	}
}
