package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "# airline passengers\nyear,month,passengers\n1949, 1, 112\n1949,2,118\n\n1949,3,132\n"

	data, err := ReadCSV(strings.NewReader(input), "airline")
	require.NoError(t, err)

	assert.Equal(t, "airline", data.Name)

	n, d := data.X.Dims()
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, d)
	assert.Equal(t, []float64{112, 118, 132}, data.Y)
	assert.Equal(t, 1949.0, data.X.At(2, 0))
	assert.Equal(t, 3.0, data.X.At(2, 1))
}

func TestReadCSVWithoutHeader(t *testing.T) {
	data, err := ReadCSV(strings.NewReader("0,1\n1,2.5\n"), "x")
	require.NoError(t, err)

	n, _ := data.X.Dims()
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{1, 2.5}, data.Y)
}

func TestReadCSVInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "header only", input: "x,y\n"},
		{name: "single column", input: "1\n2\n"},
		{name: "non-numeric row", input: "1,2\n3,abc\n"},
		{name: "ragged rows", input: "1,2\n3,4,5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), "bad")
			assert.ErrorIs(t, err, ErrInvalidData)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mauna.csv")
	require.NoError(t, os.WriteFile(path, []byte("t,co2\n1,315.7\n2,317.4\n"), 0o600))

	data, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, "mauna", data.Name)
	assert.Len(t, data.Y, 2)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
