// Package id generates ULIDs for orders, fills and backtest runs.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator issues lexicographically increasing ULIDs. It is safe for
// concurrent use.
type Generator struct {
	mu   sync.Mutex
	mono io.Reader
}

// NewGenerator returns a generator whose entropy is derived from seed. Two
// generators with the same seed fed the same timestamps yield the same IDs,
// which keeps replays reproducible.
func NewGenerator(seed int64) *Generator {
	return &Generator{mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// At returns a ULID stamped with t. Replayed events use the bar time so IDs
// sort in simulated order, not wall-clock order.
func (g *Generator) At(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t.Before(time.UnixMilli(0)) {
		t = time.UnixMilli(0)
	}
	id, err := ulid.New(ulid.Timestamp(t.UTC()), g.mono)
	if err != nil {
		// Monotonic entropy overflows only after 2^80 IDs in one millisecond.
		panic(err)
	}
	return id.String()
}

var std = NewGenerator(cryptoSeed())

func cryptoSeed() int64 {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return seed
}

// New returns a ULID stamped with the current time.
func New() string {
	return std.At(time.Now())
}

// Time extracts the timestamp encoded in a ULID string.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
