package cell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		key   Key
		value []byte
	}{
		{
			name:  "basic",
			key:   Key{Row: []byte("a"), ColumnFamilyID: 3, ColumnQualifier: []byte("cq"), Timestamp: 100, Revision: 1, Flag: FlagInsert},
			value: []byte("value"),
		},
		{
			name:  "empty qualifier and value",
			key:   Key{Row: []byte("row"), ColumnFamilyID: 0, ColumnQualifier: nil, Timestamp: -1, Revision: 0, Flag: FlagDeleteRow},
			value: nil,
		},
		{
			name:  "empty row",
			key:   Key{Row: nil, ColumnFamilyID: 255, ColumnQualifier: []byte("x"), Timestamp: 0, Revision: 0, Flag: FlagDeleteCellVersion},
			value: []byte{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, EncodedLen(tc.key, tc.value))
			n := Encode(buf, tc.key, tc.value)
			require.Equal(t, len(buf), n)

			got, consumed, err := Decode(buf)
			require.NoError(t, err)
			require.Equal(t, len(buf), consumed)
			require.Equal(t, tc.key.Row, got.Key.Row)
			require.Equal(t, tc.key.ColumnFamilyID, got.Key.ColumnFamilyID)
			require.Equal(t, tc.key.ColumnQualifier, got.Key.ColumnQualifier)
			require.Equal(t, tc.key.Timestamp, got.Key.Timestamp)
			require.Equal(t, tc.key.Revision, got.Key.Revision)
			require.Equal(t, tc.key.Flag, got.Key.Flag)
			require.Equal(t, tc.value, got.Value)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := Decode([]byte{1, 0, 0})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestCompareOrdering(t *testing.T) {
	newer := Key{Row: []byte("a"), ColumnFamilyID: 1, ColumnQualifier: []byte("q"), Timestamp: 200, Revision: 1}
	older := Key{Row: []byte("a"), ColumnFamilyID: 1, ColumnQualifier: []byte("q"), Timestamp: 100, Revision: 1}
	require.True(t, Less(newer, older), "higher timestamp sorts first (newest first)")

	deleteAtSameTS := Key{Row: []byte("a"), ColumnFamilyID: 1, ColumnQualifier: []byte("q"), Timestamp: 100, Revision: 1, Flag: FlagDeleteCell}
	insertAtSameTS := Key{Row: []byte("a"), ColumnFamilyID: 1, ColumnQualifier: []byte("q"), Timestamp: 100, Revision: 1, Flag: FlagInsert}
	require.True(t, Less(deleteAtSameTS, insertAtSameTS), "delete markers sort before matching inserts")

	rowA := Key{Row: []byte("a")}
	rowB := Key{Row: []byte("b")}
	require.True(t, Less(rowA, rowB))
}
