package ccts

import (
	"github.com/Klingon-tech/klingnet-ccts/internal/wallet"
	"github.com/Klingon-tech/klingnet-ccts/pkg/block"
	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Deposit is a single counter-chain deposit targeting the federation,
// as surfaced by a DepositExtractor.
type Deposit struct {
	ID           types.Hash
	TargetScript types.Script
	Amount       int64
	BlockHeight  int32
}

// MaturedBlockDeposits groups every deposit that matured in a single
// counter-chain block, the unit delivered to a MaturedBlockReceiver.
type MaturedBlockDeposits struct {
	BlockHeight int32
	Deposits    []Deposit
}

// Withdrawal is one deposit_id/transaction pairing observed while
// scanning a federation-chain block for bridge outputs.
type Withdrawal struct {
	DepositID types.Hash
	TxHash    types.Hash
}

// BlockRepository gives the synchronizer read access to the federation
// chain: block lookup by hash and the current tip, used to walk forward
// from the last-processed block and to locate a common ancestor on reorg.
type BlockRepository interface {
	BlockByHash(hash types.Hash) (*block.Block, bool, error)
	Tip() (hash types.Hash, height int32, err error)
}

// ChainIndex resolves height/hash relationships on the federation chain
// independently of full block bodies, used for cheap ancestry walks
// during reorg handling.
type ChainIndex interface {
	HashAtHeight(height int32) (types.Hash, bool, error)
	HeightOf(hash types.Hash) (int32, bool, error)
}

// FederationWallet is the subset of the wallet adapter contract the
// store depends on: coin visibility, atomic reservation, and rewind.
// Satisfied by *wallet.Federation.
type FederationWallet interface {
	TipToChase() (types.Hash, uint64)
	SpendableCoins(minConfirmations uint32) ([]wallet.UTXO, error)
	ReservationFor(op types.Outpoint) (types.Hash, bool, error)
	ProcessTransaction(t *tx.Transaction) (bool, error)
	RemoveTransaction(t *tx.Transaction) error
	SaveWallet() error
	RemoveBlocks(toHash types.Hash, toHeight uint64) error
	Signer() (*crypto.PrivateKey, bool)
	Threshold() int
	MemberIndex(pubKey []byte) (int, bool)
	Members() [][]byte
}

// DepositExtractor parses a counter-chain block for deposits targeting
// the federation's watched address. Pluggable so the store never
// depends on a specific counter-chain's block format.
type DepositExtractor interface {
	ExtractDeposits(blockHeight int32, raw []byte) ([]Deposit, error)
}

// WithdrawalExtractor parses a federation-chain block for the bridge
// outputs that mark a withdrawal transaction as seen on-chain.
type WithdrawalExtractor interface {
	ExtractWithdrawals(b *block.Block) ([]Withdrawal, error)
}

// MaturedBlockReceiver is notified of newly-matured counter-chain
// deposit blocks. Delivery carries no durable acknowledgement, so the
// same block can arrive more than once. EventBridge is the
// implementation in this package; it holds early batches in memory only.
type MaturedBlockReceiver interface {
	OnMaturedBlock(MaturedBlockDeposits) error
}
