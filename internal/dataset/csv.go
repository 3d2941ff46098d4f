// Package dataset loads regression data for the command line.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	ks "github.com/thalesfsp/kernelsearch"
)

// ErrInvalidData is returned for files that do not hold a numeric table.
var ErrInvalidData = errors.New("invalid dataset")

// LoadCSV reads a dataset from a CSV file. See ReadCSV for the format. The
// dataset is named after the file.
func LoadCSV(path string) (ks.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return ks.Dataset{}, err
	}
	defer f.Close()

	return ReadCSV(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// ReadCSV reads a numeric table whose last column is the output and whose
// other columns are inputs. A first row that does not parse as numbers is
// treated as a header. Lines starting with '#' are ignored.
func ReadCSV(r io.Reader, name string) (ks.Dataset, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return ks.Dataset{}, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	if len(records) > 0 {
		if _, err := parseRow(records[0]); err != nil {
			records = records[1:]
		}
	}

	if len(records) == 0 {
		return ks.Dataset{}, fmt.Errorf("%w: no rows", ErrInvalidData)
	}

	cols := len(records[0])
	if cols < 2 {
		return ks.Dataset{}, fmt.Errorf("%w: need at least one input column and one output column", ErrInvalidData)
	}

	X := mat.NewDense(len(records), cols-1, nil)
	y := make([]float64, len(records))

	for i, rec := range records {
		row, err := parseRow(rec)
		if err != nil {
			return ks.Dataset{}, fmt.Errorf("%w: row %d: %w", ErrInvalidData, i+1, err)
		}

		X.SetRow(i, row[:cols-1])
		y[i] = row[cols-1]
	}

	return ks.Dataset{Name: name, X: X, Y: y}, nil
}

func parseRow(rec []string) ([]float64, error) {
	row := make([]float64, len(rec))

	for j, field := range rec {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}

		row[j] = v
	}

	return row, nil
}
