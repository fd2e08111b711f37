package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classkeeper/classkeeper/internal/model"
)

func TestReadFields(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fields.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"title":"Essay","grade":"A"}`), 0o600))

	fields, err := readFields(p)
	require.NoError(t, err)
	require.Equal(t, "Essay", fields["title"])
	require.Equal(t, "A", fields["grade"])
}

func TestReadFields_BadJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fields.json")
	require.NoError(t, os.WriteFile(p, []byte(`not json`), 0o600))

	_, err := readFields(p)
	require.Error(t, err)
}

func TestParseType(t *testing.T) {
	typ, err := parseType("assignment")
	require.NoError(t, err)
	require.Equal(t, model.TypeAssignment, typ)

	typ, err = parseType("submission")
	require.NoError(t, err)
	require.Equal(t, model.TypeSubmission, typ)

	_, err = parseType("quiz")
	require.Error(t, err)
}
