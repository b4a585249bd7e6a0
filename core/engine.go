package core

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Solar-network/go-slp/params"
)

var (
	// ErrAlreadyApplied is returned when a record with a settled verdict
	// reaches the engine again.
	ErrAlreadyApplied = errors.New("core: contract already applied")

	// ErrUnknownContract is returned for an operation with no handler.
	ErrUnknownContract = errors.New("core: unknown contract type")
)

// Rejection is a failed contract check. The engine settles the record
// with legit=false and copies it to the rejected collection, the reason
// as comment. Only the first failed check is reported.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func reject(reason string) error { return &Rejection{Reason: reason} }

// handlerFunc runs one operation against the ledger. Checks come first
// and return a *Rejection on failure; with assertOnly the handler stops
// after the checks. Any other error is a storage fault and leaves the
// verdict open.
type handlerFunc func(e *Engine, r *Record, assertOnly bool) error

type opKey struct {
	family string
	op     string
}

var handlers = map[opKey]handlerFunc{}

// registerHandler binds an operation to its handler; the slp1 and slp2
// files fill the table from their init functions.
func registerHandler(family, op string, fn handlerFunc) {
	handlers[opKey{family: family, op: op}] = fn
}

// Engine replays journal records against the contract and wallet
// collections and settles their verdicts.
type Engine struct {
	store  *Store
	config *params.Config
}

// NewEngine binds the engine to a ledger store.
func NewEngine(store *Store, config *params.Config) *Engine {
	return &Engine{store: store, config: config}
}

// Store exposes the underlying ledger store.
func (e *Engine) Store() *Store { return e.store }

// Apply executes a journalled record and settles its verdict exactly
// once. It returns the verdict; a storage fault leaves the verdict open
// so the record can be replayed.
func (e *Engine) Apply(r *Record) (bool, error) {
	if r.Legit != nil {
		log.WithField("blockstamp", r.Blockstamp().String()).Error("Contract already applied")
		return *r.Legit, ErrAlreadyApplied
	}
	fn, ok := handlers[opKey{family: r.SlpType, op: r.Tp()}]
	if !ok {
		// no handler means the operation can never become legit
		return e.settle(r, reject("unknown contract type"))
	}
	return e.settle(r, fn(e, r, false))
}

// Replay re-applies the whole journal in order, rebuilding the derived
// collections after a DropState. Records already settled are skipped
// so a partial replay can resume.
func (e *Engine) Replay() error {
	records, err := e.store.Records(Blockstamp{}, 0)
	if err != nil {
		return err
	}
	log.Infof("Replaying %d journalled record(s)", len(records))
	for _, r := range records {
		if r.Legit != nil {
			continue
		}
		if _, err := e.Apply(r); err != nil {
			return errors.Wrapf(err, "replay stopped at %s", r.Blockstamp())
		}
	}
	return nil
}

// Check runs only the assertions of a record's operation, without
// touching ledger state or verdicts. Consensus votes use it to judge a
// peer's record against local state.
func (e *Engine) Check(r *Record) bool {
	fn, ok := handlers[opKey{family: r.SlpType, op: r.Tp()}]
	if !ok {
		return false
	}
	return fn(e, r, true) == nil
}

func (e *Engine) settle(r *Record, err error) (bool, error) {
	var rej *Rejection
	if errors.As(err, &rej) {
		log.WithFields(logrus.Fields{
			"blockstamp": r.Blockstamp().String(),
			"tp":         r.Tp(),
			"reason":     rej.Reason,
		}).Debug("Contract rejected")
		if _, serr := e.store.SetLegit(r.Blockstamp(), false); serr != nil {
			return false, serr
		}
		if serr := e.store.PutRejected(r, rej.Reason); serr != nil {
			return false, serr
		}
		return false, nil
	}
	if err != nil {
		log.WithError(err).WithField("blockstamp", r.Blockstamp().String()).
			Error("Contract execution failed")
		return false, err
	}
	if _, serr := e.store.SetLegit(r.Blockstamp(), true); serr != nil {
		return false, serr
	}
	return true, nil
}

// amount converts the record's qt field into the token scale.
func (e *Engine) amount(r *Record, scale uint8) (Amount, error) {
	qt, ok := r.Qt()
	if !ok {
		return Amount{}, reject("missing quantity")
	}
	a, err := AmountFromFloat(qt, scale)
	if err != nil {
		return Amount{}, reject("bad quantity")
	}
	return a, nil
}

// costCheck verifies the base-layer transfer paid at least the
// operation cost active at the record's height.
func (e *Engine) costCheck(r *Record) error {
	cost, ok := e.config.Cost(r.SlpType, r.Tp(), r.Height)
	if !ok || r.Cost < cost {
		return reject("transaction amount below contract cost")
	}
	return nil
}

// masterCheck verifies the transfer targets the master address.
func (e *Engine) masterCheck(r *Record) error {
	if r.Receiver != e.config.MasterAddress() {
		return reject("contract not sent to master address")
	}
	return nil
}

// tokenCheck fetches the token contract and verifies its paused state.
func (e *Engine) tokenCheck(tokenID string, paused bool) (*Contract, error) {
	token, err := e.store.GetContract(tokenID)
	if errors.Cause(err) == ErrNotFound {
		return nil, reject("unknown token")
	}
	if err != nil {
		return nil, err
	}
	if token.Paused != paused {
		if paused {
			return nil, reject("token not paused")
		}
		return nil, reject("token paused")
	}
	return token, nil
}
