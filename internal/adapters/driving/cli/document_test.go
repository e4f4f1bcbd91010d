package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Documents Command Tests

func TestDocumentsCmd_Use(t *testing.T) {
	assert.Equal(t, "documents", documentsCmd.Use)
}

func TestDocumentsCmd_HasSubcommands(t *testing.T) {
	commands := documentsCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "list")
	assert.Contains(t, commandNames, "get")
	assert.Contains(t, commandNames, "delete")
}

// Documents List Tests

func TestDocumentsListCmd_ExecutesAndPrintsDocuments(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"documents", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "doc-1")
	assert.Contains(t, buf.String(), "Security Handbook")
	assert.Contains(t, buf.String(), "Total: 1 documents")
}

func TestDocumentsListCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"documents", "list", "--json"})
	defer func() {
		rootCmd.SetArgs(nil)
		documentsJSON = false
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"ID": "doc-1"`)
}

func TestDocumentsListCmd_EmptyList(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	documentService = &stubDocuments{}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"documents", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "No documents in the vault.")
}

func TestDocumentsListCmd_ServiceNotConfigured(t *testing.T) {
	oldService := documentService
	documentService = nil
	defer func() {
		documentService = oldService
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"documents", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "document service not configured")
}

// Documents Get Tests

func TestDocumentsGetCmd_ExecutesWithArg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"documents", "get", "doc-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Document: doc-1")
	assert.Contains(t, buf.String(), "Security Handbook")
	assert.Contains(t, buf.String(), "text/plain")
}

func TestDocumentsGetCmd_NotFound(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"documents", "get", "no-such-doc"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get document")
}

// Documents Delete Tests

func TestDocumentsDeleteCmd_ExecutesWithArg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"documents", "delete", "doc-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Document doc-1 deleted; key revoked.")

	stub := ingestOrchestrator.(*stubIngest)
	assert.Equal(t, []string{"doc-1"}, stub.deleted)
}

func TestDocumentsDeleteCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	ingestOrchestrator = &stubIngest{err: errStub}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"documents", "delete", "doc-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete document")
}
