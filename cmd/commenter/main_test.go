package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epistemic-Technology/doc-commenter/internal/docx"
	"github.com/Epistemic-Technology/doc-commenter/internal/docx/docxtest"
	"github.com/Epistemic-Technology/doc-commenter/internal/spec"
)

type exitCode int

// run parses args like main does and returns what the command printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	var cli CLI
	k, err := parser(&cli,
		kong.Writers(&out, &out),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
	)
	require.NoError(t, err)

	ctx, err := k.Parse(args)
	if err != nil {
		return out.String(), err
	}
	err = ctx.Run()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnnotateDefaultCommand(t *testing.T) {
	t.Setenv("COMMENTER_LOG_LEVEL", "error")
	dir := t.TempDir()
	doc := writeFile(t, dir, "report.docx", string(docxtest.Build("Intro", "Summaries text here", "Summary")))
	specPath := writeFile(t, dir, "notes.json", `{"target":{"text":"Summary"},"comment":{"text":"Expand"}}`)
	reportPath := filepath.Join(dir, "run.json")

	out, err := run(t, doc, specPath, "--author", "QA", "--report", reportPath)
	require.NoError(t, err)

	expected := filepath.Join(dir, "report-annotated.docx")
	assert.Equal(t, "Wrote annotated file to: "+expected+"\n", out)
	assert.FileExists(t, reportPath)

	data, err := os.ReadFile(expected)
	require.NoError(t, err)
	annotated, err := docx.Open(data)
	require.NoError(t, err)
	require.Len(t, annotated.Comments(), 1)
	assert.Equal(t, "QA", annotated.Comments()[0].Author)
	assert.Equal(t, []int{0}, annotated.Paragraphs()[2].CommentIDs)
}

func TestAnnotateOutputFlag(t *testing.T) {
	t.Setenv("COMMENTER_LOG_LEVEL", "error")
	dir := t.TempDir()
	doc := writeFile(t, dir, "report.docx", string(docxtest.Build("hello")))
	specPath := writeFile(t, dir, "notes.json", `[{"target":{"text":"hello"},"comment":{"text":"hi"}}]`)
	output := filepath.Join(dir, "custom.docx")

	out, err := run(t, "annotate", doc, specPath, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, output)
	assert.FileExists(t, output)
	assert.NoFileExists(t, filepath.Join(dir, "report-annotated.docx"))
}

func TestAnnotateErrors(t *testing.T) {
	t.Setenv("COMMENTER_LOG_LEVEL", "error")
	dir := t.TempDir()
	doc := writeFile(t, dir, "report.docx", string(docxtest.Build("hello")))
	txt := writeFile(t, dir, "notes.txt", "hello")
	valid := writeFile(t, dir, "valid.json", `{"target":{"text":"hello"},"comment":{"text":"hi"}}`)
	malformed := writeFile(t, dir, "malformed.json", `{"target":`)
	invalid := writeFile(t, dir, "invalid.json", `{"target":{"text":"hello","occurrence":0},"comment":{"text":"hi"}}`)

	_, err := run(t, txt, valid)
	assert.Error(t, err)

	_, err = run(t, doc, malformed)
	assert.True(t, errors.Is(err, spec.ErrMalformed), "err = %v", err)

	_, err = run(t, doc, invalid)
	assert.True(t, errors.Is(err, spec.ErrInvalid), "err = %v", err)

	_, err = run(t, doc, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	assert.NoFileExists(t, filepath.Join(dir, "report-annotated.docx"))
}

func TestInspectCommand(t *testing.T) {
	doc := writeFile(t, t.TempDir(), "report.docx", string(docxtest.Build("Intro", "Body")))

	out, err := run(t, "inspect", doc)
	require.NoError(t, err)
	assert.Equal(t, "0\t\"Intro\"\n1\t\"Body\"\n", out)

	out, err = run(t, "inspect", "--json", doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"kind": "docx"`)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "commenter version "+version+"\n", out)
}
