package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	ks "github.com/thalesfsp/kernelsearch"
)

const keyPrefix = "eval/"

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kss_cache_requests_total",
	Help: "Evaluation cache lookups by result",
}, []string{"result"})

// Evaluator wraps another evaluator and stores every successful result in
// BadgerDB. Failed fits are not cached.
//
// Thread safety:
// - Safe for concurrent use when the wrapped evaluator is
type Evaluator struct {
	next   ks.Evaluator
	db     *badger.DB
	logger *slog.Logger

	// fingerprints memoises dataset hashes by input matrix.
	fingerprints sync.Map
}

var _ ks.Evaluator = (*Evaluator)(nil)

// NewEvaluator returns a caching decorator around next. The caller owns db.
func NewEvaluator(next ks.Evaluator, db *badger.DB, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{next: next, db: db, logger: logger}
}

// Evaluate implements ks.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, job ks.EvaluationJob) (ks.ScoredKernel, error) {
	key := e.key(job)

	if sk, ok := e.lookup(key); ok {
		cacheRequests.WithLabelValues("hit").Inc()

		return sk, nil
	}

	cacheRequests.WithLabelValues("miss").Inc()

	sk, err := e.next.Evaluate(ctx, job)
	if err != nil {
		return sk, err
	}

	if err := e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(sk.String()))
	}); err != nil {
		e.logger.Warn("cache write failed", "error", err)
	}

	return sk, nil
}

func (e *Evaluator) lookup(key []byte) (ks.ScoredKernel, bool) {
	var line string

	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			line = string(val)

			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			e.logger.Warn("cache read failed", "error", err)
		}

		return ks.ScoredKernel{}, false
	}

	sk, err := ks.ParseScoredKernel(line)
	if err != nil {
		e.logger.Warn("discarding unreadable cache entry", "error", err)

		return ks.ScoredKernel{}, false
	}

	return sk, true
}

func (e *Evaluator) key(job ks.EvaluationJob) []byte {
	h := sha256.New()

	fmt.Fprintf(h, "%s|%s|%d|%d|%t", e.fingerprint(job.Data), ks.Canonical(job.Kernel), job.Iterations, job.Seed, job.ZeroMean)

	return []byte(keyPrefix + hex.EncodeToString(h.Sum(nil)))
}

func (e *Evaluator) fingerprint(data ks.Dataset) string {
	if data.X != nil {
		if v, ok := e.fingerprints.Load(data.X); ok {
			return v.(string)
		}
	}

	fp := Fingerprint(data)

	if data.X != nil {
		e.fingerprints.Store(data.X, fp)
	}

	return fp
}

// Fingerprint hashes the values of a dataset.
func Fingerprint(data ks.Dataset) string {
	h := sha256.New()

	var buf [8]byte

	write := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}

	if data.X != nil {
		n, d := data.X.Dims()
		write(float64(n))
		write(float64(d))

		for i := 0; i < n; i++ {
			for j := 0; j < d; j++ {
				write(data.X.At(i, j))
			}
		}
	}

	for _, v := range data.Y {
		write(v)
	}

	return hex.EncodeToString(h.Sum(nil))
}
