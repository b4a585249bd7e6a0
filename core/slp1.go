package core

import (
	"math"

	"github.com/pkg/errors"

	"github.com/Solar-network/go-slp/params"
)

func init() {
	registerHandler(params.SLP1, "GENESIS", applyGenesis1)
	registerHandler(params.SLP1, "BURN", applyBurn1)
	registerHandler(params.SLP1, "MINT", applyMint1)
	registerHandler(params.SLP1, "SEND", applySend1)
	registerHandler(params.SLP1, "NEWOWNER", applyNewOwner1)
	registerHandler(params.SLP1, "FREEZE", applyFreeze1)
	registerHandler(params.SLP1, "UNFREEZE", applyUnfreeze1)
	registerHandler(params.SLP1, "PAUSE", applyPause1)
	registerHandler(params.SLP1, "RESUME", applyResume1)
}

// ownerWallet1 fetches the emitter wallet and verifies ownership and
// blockstamp monotonicity.
func (e *Engine) ownerWallet1(tokenID, address string, bs Blockstamp) (*WalletSLP1, error) {
	wallet, err := e.store.GetWallet1(tokenID, address)
	if errors.Cause(err) == ErrNotFound {
		return nil, reject("unknown wallet")
	}
	if err != nil {
		return nil, err
	}
	if !wallet.Owner {
		return nil, reject("wallet is not token owner")
	}
	if !bs.After(wallet.BlockStamp) {
		return nil, reject("blockstamp not monotonic")
	}
	return wallet, nil
}

// integralQt verifies the quantity carries no decimal part. Supply
// moves (GENESIS, MINT, BURN) stay integral; only SEND splits tokens.
func integralQt(r *Record) error {
	qt, ok := r.Qt()
	if !ok || qt != math.Trunc(qt) {
		return reject("quantity has decimal part")
	}
	return nil
}

func applyGenesis1(e *Engine, r *Record, assertOnly bool) error {
	if err := integralQt(r); err != nil {
		return err
	}
	if err := e.costCheck(r); err != nil {
		return err
	}
	if err := e.masterCheck(r); err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	scale := r.De()
	global, err := e.amount(r, scale)
	if err != nil {
		return err
	}
	// non-mintable supplies are minted in full at creation and credited
	// to the owner wallet
	minted := global
	if r.Mi() {
		minted = Zero(scale)
	}
	err = e.store.InsertContract(&Contract{
		TokenID: r.TokenID(), Height: r.Height, Index: r.Index,
		Type: params.SLP1, Name: r.Na(), Symbol: r.Sy(),
		Owner: r.Emitter, Document: r.Du(), Notes: r.No(),
		Paused: false, Decimals: scale,
		GlobalSupply: global, Minted: minted,
		Burned: Zero(scale), Exited: Zero(scale),
	})
	if errors.Cause(err) == ErrContractExists {
		return reject("token id collision")
	}
	if err != nil {
		return err
	}
	return e.store.PutWallet1(&WalletSLP1{
		Address: r.Emitter, TokenID: r.TokenID(),
		BlockStamp: r.Blockstamp(), Balance: minted,
		Owner: true, Frozen: false,
	})
}

func applyBurn1(e *Engine, r *Record, assertOnly bool) error {
	if err := integralQt(r); err != nil {
		return err
	}
	if err := e.masterCheck(r); err != nil {
		return err
	}
	token, err := e.tokenCheck(r.TokenID(), false)
	if err != nil {
		return err
	}
	wallet, err := e.ownerWallet1(r.TokenID(), r.Emitter, r.Blockstamp())
	if err != nil {
		return err
	}
	qt, err := e.amount(r, token.Decimals)
	if err != nil {
		return err
	}
	if wallet.Balance.Cmp(qt) < 0 {
		return reject("insufficient balance")
	}
	if assertOnly {
		return nil
	}

	wallet.Balance, err = wallet.Balance.Sub(qt)
	if err != nil {
		return err
	}
	wallet.BlockStamp = r.Blockstamp()
	if err := e.store.PutWallet1(wallet); err != nil {
		return err
	}
	token.Burned, err = token.Burned.Add(qt)
	if err != nil {
		return err
	}
	token.Height, token.Index = r.Height, r.Index
	return e.store.UpdateContract(token)
}

func applyMint1(e *Engine, r *Record, assertOnly bool) error {
	genesis, err := e.store.FindGenesis(r.TokenID())
	if errors.Cause(err) == ErrNotFound {
		return reject("unknown token")
	}
	if err != nil {
		return err
	}
	if !genesis.Mi() {
		return reject("token not mintable")
	}
	if err := integralQt(r); err != nil {
		return err
	}
	if err := e.masterCheck(r); err != nil {
		return err
	}
	token, err := e.tokenCheck(r.TokenID(), false)
	if err != nil {
		return err
	}
	wallet, err := e.ownerWallet1(r.TokenID(), r.Emitter, r.Blockstamp())
	if err != nil {
		return err
	}
	qt, err := e.amount(r, token.Decimals)
	if err != nil {
		return err
	}
	// minted + burned + exited never exceeds the global supply
	current, err := token.Minted.Add(token.Burned)
	if err == nil {
		current, err = current.Add(token.Exited)
	}
	if err == nil {
		current, err = current.Add(qt)
	}
	if err != nil {
		return reject("supply limit reached")
	}
	if current.Cmp(token.GlobalSupply) > 0 {
		return reject("supply limit reached")
	}
	if assertOnly {
		return nil
	}

	wallet.Balance, err = wallet.Balance.Add(qt)
	if err != nil {
		return err
	}
	wallet.BlockStamp = r.Blockstamp()
	if err := e.store.PutWallet1(wallet); err != nil {
		return err
	}
	token.Minted, err = token.Minted.Add(qt)
	if err != nil {
		return err
	}
	token.Height, token.Index = r.Height, r.Index
	return e.store.UpdateContract(token)
}

func applySend1(e *Engine, r *Record, assertOnly bool) error {
	token, err := e.tokenCheck(r.TokenID(), false)
	if err != nil {
		return err
	}
	emitter, err := e.store.GetWallet1(r.TokenID(), r.Emitter)
	if errors.Cause(err) == ErrNotFound {
		return reject("unknown wallet")
	}
	if err != nil {
		return err
	}
	if emitter.Frozen {
		return reject("wallet frozen")
	}
	qt, err := e.amount(r, token.Decimals)
	if err != nil {
		return err
	}
	// balance must strictly exceed the sent quantity
	if emitter.Balance.Cmp(qt) <= 0 {
		return reject("insufficient balance")
	}
	if !r.Blockstamp().After(emitter.BlockStamp) {
		return reject("blockstamp not monotonic")
	}
	if assertOnly {
		return nil
	}

	if err := e.store.ExchangeSLP1(r.TokenID(), r.Emitter, r.Receiver, qt); err != nil {
		return err
	}
	return e.restampWallets1(r)
}

// restampWallets1 moves both exchange parties to the record blockstamp.
func (e *Engine) restampWallets1(r *Record) error {
	for _, address := range []string{r.Emitter, r.Receiver} {
		wallet, err := e.store.GetWallet1(r.TokenID(), address)
		if err != nil {
			return err
		}
		wallet.BlockStamp = r.Blockstamp()
		if err := e.store.PutWallet1(wallet); err != nil {
			return err
		}
	}
	return nil
}

func applyNewOwner1(e *Engine, r *Record, assertOnly bool) error {
	if _, err := e.store.GetContract(r.TokenID()); errors.Cause(err) == ErrNotFound {
		return reject("unknown token")
	} else if err != nil {
		return err
	}
	emitter, err := e.ownerWallet1(r.TokenID(), r.Emitter, r.Blockstamp())
	if err != nil {
		return err
	}
	receiver, err := e.store.GetWallet1(r.TokenID(), r.Receiver)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return err
	}
	if receiver != nil && receiver.Frozen {
		return reject("receiver frozen")
	}
	if assertOnly {
		return nil
	}

	// ownership moves with the full balance; the exchange creates the
	// receiver wallet when missing
	if err := e.store.ExchangeSLP1(r.TokenID(), r.Emitter, r.Receiver, emitter.Balance); err != nil {
		return err
	}
	emitter, err = e.store.GetWallet1(r.TokenID(), r.Emitter)
	if err != nil {
		return err
	}
	emitter.Owner, emitter.BlockStamp = false, r.Blockstamp()
	if err := e.store.PutWallet1(emitter); err != nil {
		return err
	}
	receiver, err = e.store.GetWallet1(r.TokenID(), r.Receiver)
	if err != nil {
		return err
	}
	receiver.Owner, receiver.BlockStamp = true, r.Blockstamp()
	return e.store.PutWallet1(receiver)
}

func applyFreeze1(e *Engine, r *Record, assertOnly bool) error {
	return e.setFrozen1(r, true, assertOnly)
}

func applyUnfreeze1(e *Engine, r *Record, assertOnly bool) error {
	return e.setFrozen1(r, false, assertOnly)
}

func (e *Engine) setFrozen1(r *Record, frozen bool, assertOnly bool) error {
	if _, err := e.tokenCheck(r.TokenID(), false); err != nil {
		return err
	}
	if _, err := e.ownerWallet1(r.TokenID(), r.Emitter, r.Blockstamp()); err != nil {
		return err
	}
	receiver, err := e.store.GetWallet1(r.TokenID(), r.Receiver)
	if errors.Cause(err) == ErrNotFound {
		return reject("unknown wallet")
	}
	if err != nil {
		return err
	}
	if receiver.Frozen == frozen {
		if frozen {
			return reject("wallet already frozen")
		}
		return reject("wallet not frozen")
	}
	if assertOnly {
		return nil
	}

	receiver.Frozen = frozen
	return e.store.PutWallet1(receiver)
}

func applyPause1(e *Engine, r *Record, assertOnly bool) error {
	return e.setPaused1(r, true, assertOnly)
}

func applyResume1(e *Engine, r *Record, assertOnly bool) error {
	return e.setPaused1(r, false, assertOnly)
}

func (e *Engine) setPaused1(r *Record, paused bool, assertOnly bool) error {
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
	token, err := e.tokenCheck(r.TokenID(), !paused)
	if err != nil {
		return err
	}
	if _, err := e.ownerWallet1(r.TokenID(), r.Emitter, r.Blockstamp()); err != nil {
		return err
	}
	if assertOnly {
		return nil
	}

	token.Paused = paused
	token.Height, token.Index = r.Height, r.Index
	return e.store.UpdateContract(token)
}
