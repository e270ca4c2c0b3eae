package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epistemic-Technology/doc-commenter/internal/storage"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

func newHandler(t *testing.T) *RunResourceHandler {
	t.Helper()
	store := storage.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })
	report := &models.RunReport{
		RunID:        "run-1",
		DocumentPath: "/tmp/report.docx",
		Kind:         models.KindDOCX,
		Applied:      1,
		Entries: []models.EntryReport{
			{Entry: 1, Mode: models.ModeText, Matches: 1, Applied: 1, Paragraphs: []int{2}},
			{Entry: 2, Mode: models.ModeText, Warning: "no matches"},
		},
	}
	require.NoError(t, store.SaveRun(context.Background(), report))
	return NewRunResourceHandler(store)
}

func TestReadRunResource(t *testing.T) {
	h := newHandler(t)

	result, err := h.ReadResource(context.Background(), "commenter://runs/run-1")
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var report models.RunReport
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Len(t, report.Entries, 2)
}

func TestReadEntryResource(t *testing.T) {
	h := newHandler(t)

	result, err := h.ReadResource(context.Background(), "commenter://runs/run-1/entries/2")
	require.NoError(t, err)

	var entry models.EntryReport
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &entry))
	assert.Equal(t, 2, entry.Entry)
	assert.Equal(t, "no matches", entry.Warning)
}

func TestReadResourceErrors(t *testing.T) {
	h := newHandler(t)
	tests := []string{
		"pdf://run-1",
		"commenter://runs/",
		"commenter://other/run-1",
		"commenter://runs/missing",
		"commenter://runs/run-1/entries/x",
		"commenter://runs/run-1/entries/3",
		"commenter://runs/run-1/pages/1",
	}
	for _, uri := range tests {
		t.Run(uri, func(t *testing.T) {
			_, err := h.ReadResource(context.Background(), uri)
			assert.Error(t, err)
		})
	}
}

func TestListResources(t *testing.T) {
	h := newHandler(t)

	list, err := h.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "commenter://runs/run-1", list[0].URI)
	assert.Equal(t, "report.docx (run run-1)", list[0].Name)
	assert.Contains(t, list[0].Description, "2 entries, 1 annotations")
}
