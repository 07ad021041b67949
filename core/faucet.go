package core

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

const (
	suiAddressLength = 32
	evmAddressLength = 20
)

// IsWalletAddress reports whether address is a 0x-prefixed Sui (32-byte) or
// EVM (20-byte) hex address
func IsWalletAddress(address string) bool {
	raw, err := hexutil.Decode(address)
	if err != nil {
		return false
	}
	return len(raw) == suiAddressLength || len(raw) == evmAddressLength
}

// FaucetConfig is the operational configuration of the faucet
type FaucetConfig struct {
	AvailableBalance     decimal.Decimal `json:"availableBalance"`
	FaucetAmount         decimal.Decimal `json:"faucetAmount"`
	CooldownSeconds      int64           `json:"cooldownSeconds"`
	Enabled              bool            `json:"enabled"`
	MaxRequestsPerIP     int             `json:"maxRequestsPerIp"`
	MaxRequestsPerWallet int             `json:"maxRequestsPerWallet"`
}

// FaucetConfigUpdate is a partial update; nil fields are left untouched
type FaucetConfigUpdate struct {
	FaucetAmount         *decimal.Decimal `json:"faucetAmount,omitempty"`
	CooldownSeconds      *int64           `json:"cooldownSeconds,omitempty"`
	Enabled              *bool            `json:"enabled,omitempty"`
	MaxRequestsPerIP     *int             `json:"maxRequestsPerIp,omitempty"`
	MaxRequestsPerWallet *int             `json:"maxRequestsPerWallet,omitempty"`
}

// RecentRequest is one faucet dispense attempt
type RecentRequest struct {
	ID            int64           `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	IPAddress     string          `json:"ipAddress"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	TxHash        *string         `json:"txHash"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TopWallet is a wallet ranked by request count
type TopWallet struct {
	WalletAddress string `json:"walletAddress"`
	Count         int64  `json:"_count"`
}

// TopIP is an IP ranked by request count
type TopIP struct {
	IPAddress string `json:"ipAddress"`
	Count     int64  `json:"_count"`
}

// AnalyticsTotals are the aggregate counters of the summary endpoint
type AnalyticsTotals struct {
	Requests        int64           `json:"requests"`
	Success         int64           `json:"success"`
	Failed          int64           `json:"failed"`
	TokensDispensed decimal.Decimal `json:"tokensDispensed"`
}

// Analytics is the /admin/analytics summary
type Analytics struct {
	Totals     AnalyticsTotals `json:"totals"`
	Recent     []RecentRequest `json:"recent"`
	TopWallets []TopWallet     `json:"topWallets"`
	TopIPs     []TopIP         `json:"topIps"`
}

// TimeseriesPoint is one bucket of the activity chart
type TimeseriesPoint struct {
	Time    string          `json:"time"`
	Total   int64           `json:"total"`
	Success int64           `json:"success"`
	Failed  int64           `json:"failed"`
	Tokens  decimal.Decimal `json:"tokens"`
}

// Timeseries is the /admin/analytics/timeseries response
type Timeseries struct {
	Granularity string            `json:"granularity"`
	Range       string            `json:"range"`
	Data        []TimeseriesPoint `json:"data"`
}

// Dashboard bundles what the admin landing view shows
type Dashboard struct {
	Summary    Analytics  `json:"summary"`
	Timeseries Timeseries `json:"timeseries"`
}

// FaucetResult is the outcome of a successful token request
type FaucetResult struct {
	Status             string `json:"status"`
	Message            string `json:"message,omitempty"`
	Tx                 string `json:"tx,omitempty"`
	NextClaimTimestamp int64  `json:"nextClaimTimestamp,omitempty"`
}

// Cooldown is the countdown shown after a rate-limited faucet request
type Cooldown struct {
	Deadline time.Time `json:"deadline"`
}

// NewCooldown starts a cooldown of retryAfter from now
func NewCooldown(now time.Time, retryAfter time.Duration) Cooldown {
	return Cooldown{Deadline: now.Add(retryAfter)}
}

// Remaining is the whole seconds left, never negative
func (c Cooldown) Remaining(now time.Time) time.Duration {
	left := c.Deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left.Truncate(time.Second)
}

// Format renders the remaining time as HH:MM:SS
func (c Cooldown) Format(now time.Time) string {
	total := int64(c.Remaining(now) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
