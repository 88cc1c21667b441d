package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"bptindex/internal/storage"
)

// Config shapes the workload.
type Config struct {
	// N is the number of pairs loaded in the load phase and the number
	// of operations in the lookup and mixed phases; the delete phase
	// removes every second loaded pair.
	N int
	// ReadPercent is the share of lookups in the mixed phase (the rest
	// are inserts).
	ReadPercent int
	// Seed fixes the random sequence so both backends see the same
	// workload.
	Seed int64
}

// Result is one backend/phase measurement.
type Result struct {
	Backend string
	Phase   string
	Ops     int
	NsPerOp int64
}

// Backend pairs an index with its display name.
type Backend struct {
	Name  string
	Index Index
}

func benchKey(i int) storage.Key {
	return storage.MakeKey(fmt.Sprintf("k%08d", i))
}

func benchRecord(i int) storage.Record {
	return storage.MakeRecord("w", "x", int32(i))
}

// Run drives every backend through the same phases: bulk load, random
// point lookups, a mixed read/write phase, and deletion of half the
// loaded pairs. Each backend gets an identically-seeded operation
// sequence.
func Run(cfg Config, backends []Backend) ([]Result, error) {
	if cfg.N <= 0 {
		cfg.N = 10000
	}
	if cfg.ReadPercent <= 0 || cfg.ReadPercent > 100 {
		cfg.ReadPercent = 90
	}

	var results []Result
	for _, b := range backends {
		rng := rand.New(rand.NewSource(cfg.Seed))

		// 1. Load N distinct pairs.
		start := time.Now()
		for i := 0; i < cfg.N; i++ {
			if err := b.Index.Insert(benchKey(i), benchRecord(i)); err != nil {
				return nil, errors.Wrapf(err, "%s: load", b.Name)
			}
		}
		results = append(results, measure(b.Name, "load", cfg.N, start))

		// 2. Random point lookups.
		start = time.Now()
		for i := 0; i < cfg.N; i++ {
			if _, err := b.Index.Find(benchKey(rng.Intn(cfg.N))); err != nil {
				return nil, errors.Wrapf(err, "%s: lookup", b.Name)
			}
		}
		results = append(results, measure(b.Name, "lookup", cfg.N, start))

		// 3. Mixed phase; fresh keys for the write share so the pairs
		// stay distinct.
		next := cfg.N
		start = time.Now()
		for i := 0; i < cfg.N; i++ {
			if rng.Intn(100) < cfg.ReadPercent {
				if _, err := b.Index.Find(benchKey(rng.Intn(cfg.N))); err != nil {
					return nil, errors.Wrapf(err, "%s: mixed find", b.Name)
				}
			} else {
				if err := b.Index.Insert(benchKey(next), benchRecord(next)); err != nil {
					return nil, errors.Wrapf(err, "%s: mixed insert", b.Name)
				}
				next++
			}
		}
		results = append(results, measure(b.Name, "mixed", cfg.N, start))

		// 4. Delete every second loaded pair.
		start = time.Now()
		deletes := 0
		for i := 0; i < cfg.N; i += 2 {
			if _, err := b.Index.Delete(benchKey(i), benchRecord(i)); err != nil {
				return nil, errors.Wrapf(err, "%s: delete", b.Name)
			}
			deletes++
		}
		results = append(results, measure(b.Name, "delete", deletes, start))
	}
	return results, nil
}

func measure(backend, phase string, ops int, start time.Time) Result {
	return Result{
		Backend: backend,
		Phase:   phase,
		Ops:     ops,
		NsPerOp: time.Since(start).Nanoseconds() / int64(ops),
	}
}

// WriteCSV emits the results with a header row.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Backend", "Phase", "Ops", "NsPerOp"}); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, r := range results {
		row := []string{r.Backend, r.Phase, strconv.Itoa(r.Ops), strconv.FormatInt(r.NsPerOp, 10)}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
