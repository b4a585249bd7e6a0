package core

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/Solar-network/go-slp/params"
	"github.com/Solar-network/go-slp/smartbridge"
)

func init() {
	registerHandler(params.SLP2, "GENESIS", applyGenesis2)
	registerHandler(params.SLP2, "NEWOWNER", applyNewOwner2)
	registerHandler(params.SLP2, "PAUSE", applyPause2)
	registerHandler(params.SLP2, "RESUME", applyResume2)
	registerHandler(params.SLP2, "AUTHMETA", applyAuthMeta2)
	registerHandler(params.SLP2, "ADDMETA", applyAddMeta2)
	registerHandler(params.SLP2, "VOIDMETA", applyVoidMeta2)
	registerHandler(params.SLP2, "REVOKEMETA", applyRevokeMeta2)
	registerHandler(params.SLP2, "CLONE", applyClone2)
}

// ownerWallet2 fetches the emitter wallet and verifies ownership and
// blockstamp monotonicity.
func (e *Engine) ownerWallet2(tokenID, address string, bs Blockstamp) (*WalletSLP2, error) {
	wallet, err := e.wallet2(tokenID, address, bs)
	if err != nil {
		return nil, err
	}
	if !wallet.Owner {
		return nil, reject("wallet is not token owner")
	}
	return wallet, nil
}

// wallet2 fetches a metadata wallet and verifies blockstamp
// monotonicity; editors do not need ownership.
func (e *Engine) wallet2(tokenID, address string, bs Blockstamp) (*WalletSLP2, error) {
	wallet, err := e.store.GetWallet2(tokenID, address)
	if errors.Cause(err) == ErrNotFound {
		return nil, reject("unknown wallet")
	}
	if err != nil {
		return nil, err
	}
	if !bs.After(wallet.BlockStamp) {
		return nil, reject("blockstamp not monotonic")
	}
	return wallet, nil
}

func applyGenesis2(e *Engine, r *Record, assertOnly bool) error {
	if err := e.costCheck(r); err != nil {
		return err
	}
	if err := e.masterCheck(r); err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	err := e.store.InsertContract(&Contract{
		TokenID: r.TokenID(), Height: r.Height, Index: r.Index,
		Type: params.SLP2, Name: r.Na(), Symbol: r.Sy(),
		Owner: r.Emitter, Document: r.Du(), Notes: r.No(),
		Paused: false,
	})
	if errors.Cause(err) == ErrContractExists {
		return reject("token id collision")
	}
	if err != nil {
		return err
	}
	return e.store.PutWallet2(&WalletSLP2{
		Address: r.Emitter, TokenID: r.TokenID(),
		BlockStamp: r.Blockstamp(), Owner: true, Metadata: []byte{},
	})
}

func applyNewOwner2(e *Engine, r *Record, assertOnly bool) error {
	if _, err := e.tokenCheck(r.TokenID(), false); err != nil {
		return err
	}
	emitter, err := e.ownerWallet2(r.TokenID(), r.Emitter, r.Blockstamp())
	if err != nil {
		return err
	}
	receiver, err := e.store.GetWallet2(r.TokenID(), r.Receiver)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return err
	}
	if assertOnly {
		return nil
	}

	if receiver == nil {
		receiver = &WalletSLP2{
			Address: r.Receiver, TokenID: r.TokenID(),
			BlockStamp: r.Blockstamp(), Metadata: []byte{},
		}
	}
	receiver.Owner, receiver.BlockStamp = true, r.Blockstamp()
	if err := e.store.PutWallet2(receiver); err != nil {
		return err
	}
	emitter.Owner, emitter.BlockStamp = false, r.Blockstamp()
	return e.store.PutWallet2(emitter)
}

func applyPause2(e *Engine, r *Record, assertOnly bool) error {
	genesis, err := e.store.FindGenesis(r.TokenID())
	if errors.Cause(err) == ErrNotFound {
		return reject("unknown token")
	}
	if err != nil {
		return err
	}
	if !genesis.Pa() {
		return reject("token not pausable")
	}
	if err := e.masterCheck(r); err != nil {
		return err
	}
	token, err := e.tokenCheck(r.TokenID(), false)
	if err != nil {
		return err
	}
	if _, err := e.ownerWallet2(r.TokenID(), r.Emitter, r.Blockstamp()); err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	token.Paused = true
	token.Height, token.Index = r.Height, r.Index
	return e.store.UpdateContract(token)
}

func applyResume2(e *Engine, r *Record, assertOnly bool) error {
	if err := e.masterCheck(r); err != nil {
		return err
	}
	token, err := e.tokenCheck(r.TokenID(), true)
	if err != nil {
		return err
	}
	if _, err := e.ownerWallet2(r.TokenID(), r.Emitter, r.Blockstamp()); err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	token.Paused = false
	token.Height, token.Index = r.Height, r.Index
	return e.store.UpdateContract(token)
}

func applyAuthMeta2(e *Engine, r *Record, assertOnly bool) error {
	if _, err := e.tokenCheck(r.TokenID(), false); err != nil {
		return err
	}
	if _, err := e.ownerWallet2(r.TokenID(), r.Emitter, r.Blockstamp()); err != nil {
		return err
	}
	if _, err := e.store.GetWallet2(r.TokenID(), r.Receiver); err == nil {
		return reject("metadata slot already exists")
	} else if errors.Cause(err) != ErrNotFound {
		return err
	}
	if assertOnly {
		return nil
	}

	return e.store.PutWallet2(&WalletSLP2{
		Address: r.Receiver, TokenID: r.TokenID(),
		BlockStamp: r.Blockstamp(), Owner: false, Metadata: []byte{},
	})
}

// metaBag reads the ADDMETA payload: a single na/dt pair, an already
// decoded bag (codec path) or a JSON object string (vendor field path).
func metaBag(r *Record) (map[string]string, error) {
	if na := r.Na(); na != "" {
		dt, ok := r.Dt().(string)
		if !ok {
			return nil, reject("bad metadata")
		}
		return map[string]string{na: dt}, nil
	}
	switch dt := r.Dt().(type) {
	case map[string]string:
		return dt, nil
	case map[string]interface{}:
		bag := make(map[string]string, len(dt))
		for k, v := range dt {
			s, ok := v.(string)
			if !ok {
				return nil, reject("bad metadata")
			}
			bag[k] = s
		}
		return bag, nil
	case string:
		bag := make(map[string]string)
		if err := json.Unmarshal([]byte(dt), &bag); err != nil {
			return nil, reject("bad metadata")
		}
		return bag, nil
	}
	return nil, reject("bad metadata")
}

func applyAddMeta2(e *Engine, r *Record, assertOnly bool) error {
	if err := e.masterCheck(r); err != nil {
		return err
	}
	if _, err := e.tokenCheck(r.TokenID(), false); err != nil {
		return err
	}
	emitter, err := e.wallet2(r.TokenID(), r.Emitter, r.Blockstamp())
	if err != nil {
		return err
	}
	bag, err := metaBag(r)
	if err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	emitter.Metadata = append(emitter.Metadata, smartbridge.MarshalMeta(bag)...)
	emitter.BlockStamp = r.Blockstamp()
	return e.store.PutWallet2(emitter)
}

func applyVoidMeta2(e *Engine, r *Record, assertOnly bool) error {
	if err := e.masterCheck(r); err != nil {
		return err
	}
	if _, err := e.tokenCheck(r.TokenID(), false); err != nil {
		return err
	}
	emitter, err := e.wallet2(r.TokenID(), r.Emitter, r.Blockstamp())
	if err != nil {
		return err
	}
	// the voided transaction must be an ADDMETA of the same token
	reference, err := e.store.FindByTxID(r.Tx())
	if errors.Cause(err) == ErrNotFound {
		return reject("unknown reference transaction")
	}
	if err != nil {
		return err
	}
	if reference.Tp() != "ADDMETA" || reference.TokenID() != r.TokenID() {
		return reject("reference is not an addmeta of this token")
	}
	voided, err := metaBag(reference)
	if err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	// drop only the referenced keys from the wallet bag
	bag, err := smartbridge.UnmarshalMeta(emitter.Metadata)
	if err != nil {
		return err
	}
	for key := range voided {
		delete(bag, key)
	}
	emitter.Metadata = smartbridge.MarshalMeta(bag)
	emitter.BlockStamp = r.Blockstamp()
	return e.store.PutWallet2(emitter)
}

func applyRevokeMeta2(e *Engine, r *Record, assertOnly bool) error {
	if _, err := e.tokenCheck(r.TokenID(), false); err != nil {
		return err
	}
	if _, err := e.ownerWallet2(r.TokenID(), r.Emitter, r.Blockstamp()); err != nil {
		return err
	}
	if _, err := e.store.GetWallet2(r.TokenID(), r.Receiver); errors.Cause(err) == ErrNotFound {
		return reject("unknown metadata slot")
	} else if err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	return e.store.DeleteWallet2(r.TokenID(), r.Receiver)
}

func applyClone2(e *Engine, r *Record, assertOnly bool) error {
	if err := e.masterCheck(r); err != nil {
		return err
	}
	genesis, err := e.store.FindGenesis(r.TokenID())
	if errors.Cause(err) == ErrNotFound {
		return reject("unknown token")
	}
	if err != nil {
		return err
	}
	if _, err := e.tokenCheck(r.TokenID(), false); err != nil {
		return err
	}
	emitter, err := e.ownerWallet2(r.TokenID(), r.Emitter, r.Blockstamp())
	if err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	// the clone gets its own deterministic id and the aggregate of all
	// metadata slots of the source token
	newTokenID := TokenID(genesis.SlpType, genesis.Sy(), r.Height, r.TxID)
	wallets, err := e.store.Wallets2(r.TokenID())
	if err != nil {
		return err
	}
	var metadata []byte
	for _, w := range wallets {
		metadata = append(metadata, w.Metadata...)
	}
	err = e.store.InsertContract(&Contract{
		TokenID: newTokenID, Height: r.Height, Index: r.Index,
		Type: params.SLP2, Name: genesis.Na(), Symbol: genesis.Sy(),
		Owner: emitter.Address, Document: genesis.Du(), Notes: genesis.No(),
		Paused: false,
	})
	if errors.Cause(err) == ErrContractExists {
		return reject("token id collision")
	}
	if err != nil {
		return err
	}
	return e.store.PutWallet2(&WalletSLP2{
		Address: emitter.Address, TokenID: newTokenID,
		BlockStamp: r.Blockstamp(), Owner: true, Metadata: metadata,
	})
}
