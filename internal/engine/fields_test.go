package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classkeeper/classkeeper/internal/model"
)

func TestDiffFields(t *testing.T) {
	lm := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	local := model.Record{ID: "a1", LastModified: lm, Fields: map[string]any{
		"title":       "Essay",
		"description": "Write 500 words",
		"grade":       "A",
		"room":        "104", // not on the watch-list, never reported
	}}
	server := model.Record{ID: "a1", LastModified: lm, Fields: map[string]any{
		"title":       "Essay",
		"description": "Write 800 words",
		"feedback":    "good start",
		"room":        "205",
	}}

	got := diffFields(local, server)
	// watch-list order: description differs, grade local-only, feedback server-only
	require.Equal(t, []string{"description", "grade", "feedback"}, got)
}

func TestDiffFields_EqualPayloads(t *testing.T) {
	r := model.Record{ID: "s1", Fields: map[string]any{"answers": []any{"a", "b"}}}
	require.Empty(t, diffFields(r, r.Clone()))
}

func TestCreateConflictFields_FixedLists(t *testing.T) {
	require.Equal(t, []string{"title", "description", "due_date"}, createConflictFields(model.TypeAssignment))
	require.Equal(t, []string{"answers", "submitted_at"}, createConflictFields(model.TypeSubmission))
	require.Empty(t, createConflictFields("unknown"))
}
