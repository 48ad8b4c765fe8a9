package pipeline

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/bundler/internal/model"
)

func TestQuarantineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.jsonl")

	q, err := OpenQuarantineFile(path)
	require.NoError(t, err)

	require.NoError(t, q.Write(ErrorRecord{Stage: StageInput, RowNumber: 3, RawData: "a,b", ErrorType: ErrorTypeMalformedRow, Message: "wrong number of fields"}))
	require.NoError(t, q.Write(ErrorRecord{
		Stage:     StageBundle,
		Group:     "u/2017-08-01",
		Events:    []model.Event{{Timestamp: 1, UserID: "u", FriendID: "f", FriendName: "Ann"}},
		ErrorType: ErrorTypeUnsortedGroup,
		Message:   "unsorted",
	}))
	assert.Equal(t, int64(2), q.Written())
	require.NoError(t, q.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "input", lines[0]["stage"])
	assert.Equal(t, "malformed_row", lines[0]["type"])
	assert.Equal(t, float64(3), lines[0]["row"])
	assert.Equal(t, "unsorted_group", lines[1]["type"])
	assert.Len(t, lines[1]["events"], 1)
}

func TestOpenQuarantineFile_BadPath(t *testing.T) {
	_, err := OpenQuarantineFile(filepath.Join(t.TempDir(), "missing", "q.jsonl"))
	assert.Error(t, err)
}
