package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/pkg/testutil"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRun_TextLayer(t *testing.T) {
	pdf := writeFile(t, "cnh.pdf", testutil.LinesPDF(testutil.SampleCNHLines...))
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	xlsxPath := filepath.Join(dir, "out.xlsx")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--file", pdf,
		"--engine", "textlayer",
		"--csv", csvPath,
		"--xlsx", xlsxPath,
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var res domain.ExtractionResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, "textlayer", res.Source)
	assert.Equal(t, "JOAO DA SILVA SANTOS", res.Get(domain.FieldName).Value)
	assert.Equal(t, "12345678909", res.Get(domain.FieldCPF).Value)
	assert.Equal(t, "15/03/1990", res.Get(domain.FieldBirthDate).Value)
	assert.Equal(t, "20/03/2030", res.Get(domain.FieldValidityDate).Value)

	csvData, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csvData), "nome,cpf,"))

	xlsxData, err := os.ReadFile(xlsxPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(xlsxData, []byte("PK")))
}

func TestRun_CSVSeparator(t *testing.T) {
	pdf := writeFile(t, "cnh.pdf", testutil.LinesPDF(testutil.SampleCNHLines...))
	csvPath := filepath.Join(t.TempDir(), "out.csv")
	t.Setenv("CNHFLOW_EXTRACTION_CSV_SEPARATOR", "§")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--file", pdf, "--engine", "textlayer", "--csv", csvPath,
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	csvData, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csvData), "nome§cpf§"), string(csvData))
}

func TestRun_EmptyCSVSeparator(t *testing.T) {
	pdf := writeFile(t, "cnh.pdf", testutil.LinesPDF(testutil.SampleCNHLines...))
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "cnh-service.yaml"),
		[]byte("extraction:\n  csv_separator: \"\"\n"), 0o600))
	chdir(t, dir)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--file", pdf, "--engine", "textlayer"}, &stdout, &stderr)

	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "csv_separator")
	assert.Empty(t, stdout.String())
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name     string
		args     func(t *testing.T) []string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "missing file flag",
			args:     func(*testing.T) []string { return nil },
			wantCode: exitUsage,
			wantMsg:  "--file is required",
		},
		{
			name: "unknown engine",
			args: func(t *testing.T) []string {
				return []string{"--file", "x.pdf", "--engine", "cloud"}
			},
			wantCode: exitUsage,
			wantMsg:  "--engine must be one of",
		},
		{
			name: "file does not exist",
			args: func(t *testing.T) []string {
				return []string{"--file", filepath.Join(t.TempDir(), "missing.pdf")}
			},
			wantCode: exitUsage,
			wantMsg:  "missing.pdf",
		},
		{
			name: "bad roi",
			args: func(t *testing.T) []string {
				return []string{"--file", writeFile(t, "cnh.pdf", testutil.LinesPDF("CNH")), "--roi", "1,1,0,0"}
			},
			wantCode: exitUsage,
			wantMsg:  "roi",
		},
		{
			name: "not a document",
			args: func(t *testing.T) []string {
				return []string{"--file", writeFile(t, "notes.txt", []byte("hello"))}
			},
			wantCode: exitFailed,
			wantMsg:  "document must be a PDF, PNG or JPEG file",
		},
		{
			name: "no text layer",
			args: func(t *testing.T) []string {
				return []string{"--file", writeFile(t, "blank.pdf", testutil.LinesPDF()), "--engine", "textlayer"}
			},
			wantCode: exitFailed,
			wantMsg:  "no text found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args(t), &stdout, &stderr)

			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stderr.String(), tt.wantMsg)
			assert.Empty(t, stdout.String())
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24)
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
