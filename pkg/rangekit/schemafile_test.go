package rangekit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchemaJSON = `{
  "max_column_family_id": 1,
  "families": [
    {"id": 0, "name": "cf", "max_versions": 1, "access_group": "default"}
  ],
  "access_groups": [
    {"name": "default", "column_families": ["cf"]}
  ]
}`

func TestLoadSchemaFileParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(testSchemaJSON), 0o644))

	sch, err := LoadSchemaFile(path)
	require.NoError(t, err)
	require.Len(t, sch.Families, 1)
	fam, ok := sch.FamilyByName("cf")
	require.True(t, ok)
	require.Equal(t, "default", fam.AccessGroupName)
}

func TestLoadSchemaFileRejectsFamilyWithNoAccessGroup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"families":[{"id":0,"name":"cf"}]}`), 0o644))

	_, err := LoadSchemaFile(path)
	require.Error(t, err)
}
