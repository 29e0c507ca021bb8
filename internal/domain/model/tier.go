package model

// UnlimitedWithdrawal is the sentinel withdrawal limit for the full tier.
const UnlimitedWithdrawal = -1

// TierInfo describes one access level granted after verification.
type TierInfo struct {
	Tier            int    `json:"tier"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	WithdrawalLimit int    `json:"withdrawal_limit"`
}

// TierCatalog returns the fixed tier catalog, lowest first.
func TierCatalog() []TierInfo {
	return []TierInfo{
		{
			Tier:            0,
			Name:            "view_only",
			Description:     "Account visible, no withdrawals permitted",
			WithdrawalLimit: 0,
		},
		{
			Tier:            1,
			Name:            "basic",
			Description:     "Standard access with a capped withdrawal limit",
			WithdrawalLimit: 1000,
		},
		{
			Tier:            2,
			Name:            "full",
			Description:     "Full access with unlimited withdrawals",
			WithdrawalLimit: UnlimitedWithdrawal,
		},
	}
}
