package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Status Command Tests

func TestStatusCmd_Use(t *testing.T) {
	assert.Equal(t, "status [run-id]", statusCmd.Use)
}

func TestStatusCmd_PrintsRunState(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "run-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Run: run-1")
	assert.Contains(t, buf.String(), "Document: doc-1")
	assert.Contains(t, buf.String(), "Status:   ready")
	assert.Contains(t, buf.String(), "Chunks:   3")
}

func TestStatusCmd_UnknownRun(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"status", "run-404"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get run status")
}

func TestStatusCmd_ServiceNotConfigured(t *testing.T) {
	oldService := ingestOrchestrator
	ingestOrchestrator = nil
	defer func() {
		ingestOrchestrator = oldService
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"status", "run-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ingest service not configured")
}

// Cancel Command Tests

func TestCancelCmd_Use(t *testing.T) {
	assert.Equal(t, "cancel [run-id]", cancelCmd.Use)
}

func TestCancelCmd_CancelsRun(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"cancel", "run-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Run run-1 cancelled.")
	assert.Equal(t, []string{"run-1"}, ingestOrchestrator.(*stubIngest).cancelled)
}

func TestCancelCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	ingestOrchestrator = &stubIngest{err: errStub}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"cancel", "run-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to cancel run")
}
