package kernelsearch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

//////
// Const, vars, types.
//////

// levelMarker matches the line that opens the results of one depth.
var levelMarker = regexp.MustCompile(`^%%%%% Level (\d+) %%%%%$`)

// LevelResults is the block of results persisted for one depth.
type LevelResults struct {
	Depth   int
	Results []ScoredKernel
}

// ResultsLog persists search results to a text file. Every write rebuilds the
// whole file under a temporary name and renames it over the final path, so a
// reader never observes a partially written depth.
//
// Thread safety:
// - Safe for concurrent use; writes are serialized
type ResultsLog struct {
	mu     sync.Mutex
	path   string
	header string
	levels []LevelResults
}

//////
// Factory.
//////

// NewResultsLog prepares a log at path whose header names the dataset, the run
// and the full configuration. Nothing is written until AppendLevel.
//
// Every header line after the first is indented by one space, and readers
// ignore indented lines, so no configuration value can be read back as a
// level marker or a result.
func NewResultsLog(path, dataset, runID string, config SearchConfig) (*ResultsLog, error) {
	cfg, err := config.YAML()
	if err != nil {
		return nil, fmt.Errorf("render config for results header: %w", err)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Experiment results for\n datafile = %s\n run = %s\n\n Running experiment:\n", singleLine(dataset), singleLine(runID))

	for _, line := range strings.Split(strings.TrimRight(cfg, "\n"), "\n") {
		b.WriteString(" " + line + "\n")
	}

	return &ResultsLog{path: path, header: b.String()}, nil
}

//////
// Methods.
//////

// Path is the final location of the log.
func (l *ResultsLog) Path() string { return l.path }

// AppendLevel records the results of one depth and atomically rewrites the
// file.
func (l *ResultsLog) AppendLevel(depth int, results []ScoredKernel) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.levels = append(l.levels, LevelResults{Depth: depth, Results: append([]ScoredKernel(nil), results...)})

	var b strings.Builder

	b.WriteString(l.header)

	for _, level := range l.levels {
		fmt.Fprintf(&b, "\n%%%%%%%%%% Level %d %%%%%%%%%%\n\n", level.Depth)

		for _, r := range level.Results {
			b.WriteString(r.String())
			b.WriteByte('\n')
		}
	}

	return writeFileAtomic(l.path, []byte(b.String()))
}

//////
// Exported functionalities.
//////

// ReadResults parses every level of a results log.
//
// Returns:
// - []LevelResults: one entry per level marker, in file order; results that
// precede the first marker are attributed to level 0
// - error: wraps ErrMalformedResults with the offending line number
func ReadResults(r io.Reader) ([]LevelResults, error) {
	return readResults(r, -1)
}

// ParseBestResult returns the best-scoring entry of a results log, reading
// only levels up to maxLevel. A negative maxLevel reads everything.
//
// Returns:
// - ScoredKernel: the lowest score under c, NaN scores ignored
// - error: wraps ErrMalformedResults on a syntax error or when no usable
// entry exists
func ParseBestResult(r io.Reader, maxLevel int, c Criterion) (ScoredKernel, error) {
	levels, err := readResults(r, maxLevel)
	if err != nil {
		return ScoredKernel{}, err
	}

	var all []ScoredKernel
	for _, level := range levels {
		all = append(all, level.Results...)
	}

	if len(all) == 0 {
		return ScoredKernel{}, fmt.Errorf("%w: no scored kernels", ErrMalformedResults)
	}

	best, ok := Best(all, c)
	if !ok {
		return ScoredKernel{}, fmt.Errorf("%w: every %s score is NaN", ErrMalformedResults, c)
	}

	return best, nil
}

// ParseBestResultFile is ParseBestResult over a file.
func ParseBestResultFile(path string, maxLevel int, c Criterion) (ScoredKernel, error) {
	f, err := os.Open(path)
	if err != nil {
		return ScoredKernel{}, err
	}
	defer f.Close()

	return ParseBestResult(f, maxLevel, c)
}

//////
// Helper functions.
//////

func readResults(r io.Reader, maxLevel int) ([]LevelResults, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var levels []LevelResults

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		raw := scanner.Text()
		if strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t") {
			continue
		}

		line := strings.TrimRight(raw, " \t\r")

		if m := levelMarker.FindStringSubmatch(line); m != nil {
			depth, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedResults, lineNo, err)
			}

			if maxLevel >= 0 && depth > maxLevel {
				break
			}

			levels = append(levels, LevelResults{Depth: depth})

			continue
		}

		if !strings.HasPrefix(line, "ScoredKernel") {
			continue
		}

		sk, err := parseScoredKernelLine(line, lineNo)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedResults, lineNo, err)
		}

		if len(levels) == 0 {
			levels = append(levels, LevelResults{Depth: 0})
		}

		last := &levels[len(levels)-1]
		last.Results = append(last.Results, sk)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResults, err)
	}

	return levels, nil
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.unfinished")
	if err != nil {
		return fmt.Errorf("create temp results file: %w", err)
	}

	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()

		return fmt.Errorf("write temp results file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()

		return fmt.Errorf("sync temp results file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("close temp results file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("rename results file: %w", err)
	}

	return nil
}
