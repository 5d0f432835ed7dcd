package aggregate

import (
	"math/big"
	"time"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

const minuteLayout = "2006-01-02T15:04:05Z"

// CirculatingSupply derives the supply breakdown for one minute. All values are in wei.
//
//	evm_balances          = el_supply - burnt_fees + staking_withdrawals
//	current_supply        = el_supply - burnt_fees + staking_rewards
//	beacon_chain_balances = beacon_chain_deposits + staking_rewards - staking_withdrawals
//	circulating_supply    = evm_balances - beacon_chain_deposits
func CirculatingSupply(minute time.Time, supply entities.EthSupply, deposits *big.Int) *entities.SupplyRecord {
	issued := new(big.Int).Sub(supply.ElSupply, supply.BurntFees)

	evmBalances := new(big.Int).Add(issued, supply.StakingWithdrawals)
	currentSupply := new(big.Int).Add(issued, supply.StakingRewards)
	beaconBalances := new(big.Int).Add(deposits, supply.StakingRewards)
	beaconBalances.Sub(beaconBalances, supply.StakingWithdrawals)

	return &entities.SupplyRecord{
		Timestamp:           minute.UTC().Truncate(time.Minute).Format(minuteLayout),
		ElSupply:            supply.ElSupply,
		BurntFees:           supply.BurntFees,
		StakingRewards:      supply.StakingRewards,
		StakingWithdrawals:  supply.StakingWithdrawals,
		BeaconChainDeposits: deposits,
		EvmBalances:         evmBalances,
		CurrentSupply:       currentSupply,
		BeaconChainBalances: beaconBalances,
		CirculatingSupply:   new(big.Int).Sub(evmBalances, deposits),
	}
}
