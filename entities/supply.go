package entities

import "math/big"

// EthSupply are the execution layer supply figures in wei as reported by the supply source.
type EthSupply struct {
	ElSupply           *big.Int
	BurntFees          *big.Int
	StakingRewards     *big.Int
	StakingWithdrawals *big.Int
}
