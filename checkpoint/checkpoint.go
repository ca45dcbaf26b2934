// Package checkpoint persists per-round chain state so that long fits can be
// inspected or resumed after an interruption.
package checkpoint

import (
	"encoding/json"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var log = logging.MustGetLogger("checkpoint")

// rounds is the bucket holding all checkpoint values.
var rounds = []byte("rounds")

// ChainState is the serializable state of one chain at a round boundary.
type ChainState struct {
	Position     []float64
	LogPosterior float64
	Covariance   []float64 // row-major dim x dim
	AcceptRate   float64
}

// RoundState is the serializable state of a whole run after one round.
type RoundState struct {
	Round  int
	Chains []ChainState
}

// IO reads and writes run checkpoints in a bolt database, one entry per run
// key. Save overwrites: only the most recent round is kept.
type IO struct {
	db  *bolt.DB
	key []byte
}

// Open opens (creating if needed) the bolt database at path and returns an
// IO writing under the given run key.
func Open(path, key string) (*IO, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not open checkpoint database %s", path)
	}
	return &IO{db: db, key: []byte(key)}, nil
}

// NewIO wraps an already-open bolt database.
func NewIO(db *bolt.DB, key string) *IO {
	return &IO{db: db, key: []byte(key)}
}

// Close closes the underlying database.
func (s *IO) Close() error {
	return s.db.Close()
}

// Save writes the round state for this run, replacing any previous round.
func (s *IO) Save(state *RoundState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "Could not serialize checkpoint for round %d", state.Round)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(rounds)
		if err != nil {
			return err
		}
		return b.Put(s.key, data)
	})
	if err != nil {
		return errors.Wrapf(err, "Could not save checkpoint for round %d", state.Round)
	}

	log.Debugf("Saved checkpoint for round %d (%d chains)", state.Round, len(state.Chains))
	return nil
}

// Load returns the last saved round state for this run, or nil if no
// checkpoint has been written yet.
func (s *IO) Load() (*RoundState, error) {
	var data []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(rounds)
		if b == nil {
			return nil
		}
		if v := b.Get(s.key); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "Could not read checkpoint")
	}

	if data == nil {
		return nil, nil
	}

	var state RoundState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrap(err, "Could not parse checkpoint")
	}

	log.Noticef("Found checkpoint at round %d (%d chains)", state.Round, len(state.Chains))
	return &state, nil
}
