package comptroller

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"
)

// MaxSymbolLength bounds market symbols, in runes.
const MaxSymbolLength = 32

// Config captures the genesis configuration applied to a fresh ledger.
// Ratios are decimal strings ("0.5"); amounts and speeds are integer strings.
type Config struct {
	Admin                string         `toml:"Admin"`
	PauseGuardian        string         `toml:"PauseGuardian"`
	BorrowCapGuardian    string         `toml:"BorrowCapGuardian"`
	CloseFactor          string         `toml:"CloseFactor"`
	LiquidationIncentive string         `toml:"LiquidationIncentive"`
	MaxAssets            uint64         `toml:"MaxAssets"`
	GovernanceToken      string         `toml:"GovernanceToken"`
	Markets              []MarketConfig `toml:"markets"`
}

// MarketConfig lists one market to create and support at genesis.
type MarketConfig struct {
	Address          string `toml:"Address"`
	Symbol           string `toml:"Symbol"`
	CollateralFactor string `toml:"CollateralFactor"`
	BorrowCap        string `toml:"BorrowCap"`
	ExchangeRate     string `toml:"ExchangeRate"`
	Price            string `toml:"Price"`
	// Cash seeds the market's underlying liquidity.
	Cash                  string `toml:"Cash"`
	GovernanceSupplySpeed string `toml:"GovernanceSupplySpeed"`
	GovernanceBorrowSpeed string `toml:"GovernanceBorrowSpeed"`
	NativeSupplySpeed     string `toml:"NativeSupplySpeed"`
	NativeBorrowSpeed     string `toml:"NativeBorrowSpeed"`
}

// DefaultConfig returns conservative protocol parameters without markets.
func DefaultConfig() Config {
	return Config{
		CloseFactor:          "0.5",
		LiquidationIncentive: "1.08",
	}
}

// ParseAmount parses an integer decimal string. Empty strings are zero.
func ParseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	out, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, value, err)
	}
	return out, nil
}

// ParseAddress parses a hex address. Empty strings are the zero address.
func ParseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: address %q", ErrInvalidInput, value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseOptionalMantissa(value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return new(uint256.Int), nil
	}
	return ParseMantissa(value)
}

// NormalizeSymbol folds symbol to NFKC so visually identical symbols
// compare equal. Blank symbols, symbols with spaces or control characters
// and symbols longer than MaxSymbolLength are rejected.
func NormalizeSymbol(symbol string) (string, error) {
	normalized := norm.NFKC.String(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", fmt.Errorf("%w: symbol required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(normalized) > MaxSymbolLength {
		return "", fmt.Errorf("%w: symbol %q longer than %d characters", ErrInvalidInput, symbol, MaxSymbolLength)
	}
	for _, r := range normalized {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: symbol %q contains whitespace or control characters", ErrInvalidInput, symbol)
		}
	}
	return normalized, nil
}

// Validate checks that every field parses and respects the protocol bounds.
func (c Config) Validate() error {
	admin, err := ParseAddress(c.Admin)
	if err != nil {
		return fmt.Errorf("comptroller: admin: %w", err)
	}
	if admin == (common.Address{}) {
		return fmt.Errorf("comptroller: admin must be set")
	}
	for name, value := range map[string]string{
		"pause guardian":      c.PauseGuardian,
		"borrow cap guardian": c.BorrowCapGuardian,
		"governance token":    c.GovernanceToken,
	} {
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("comptroller: %s: %w", name, err)
		}
	}
	closeFactor, err := ParseMantissa(c.CloseFactor)
	if err != nil {
		return fmt.Errorf("comptroller: close factor: %w", err)
	}
	if closeFactor.Lt(MinCloseFactor) || closeFactor.Gt(MaxCloseFactor) {
		return fmt.Errorf("comptroller: close factor %s outside [0.05, 0.9]", c.CloseFactor)
	}
	incentive, err := ParseMantissa(c.LiquidationIncentive)
	if err != nil {
		return fmt.Errorf("comptroller: liquidation incentive: %w", err)
	}
	if incentive.Lt(MinLiquidationIncentive) || incentive.Gt(MaxLiquidationIncentive) {
		return fmt.Errorf("comptroller: liquidation incentive %s outside [1.0, 1.5]", c.LiquidationIncentive)
	}
	seen := make(map[common.Address]struct{}, len(c.Markets))
	for i, market := range c.Markets {
		addr, err := market.validate(i)
		if err != nil {
			return err
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("comptroller: markets[%d]: duplicate address %s", i, addr.Hex())
		}
		seen[addr] = struct{}{}
	}
	return nil
}

// validate checks the i-th market entry and returns its address.
func (m MarketConfig) validate(i int) (common.Address, error) {
	fail := func(format string, args ...any) (common.Address, error) {
		return common.Address{}, fmt.Errorf("comptroller: markets[%d]: "+format, append([]any{i}, args...)...)
	}
	addr, err := ParseAddress(m.Address)
	if err != nil {
		return fail("address: %w", err)
	}
	if addr == (common.Address{}) {
		return fail("address must be set")
	}
	if _, err := NormalizeSymbol(m.Symbol); err != nil {
		return fail("%w", err)
	}
	factor, err := parseOptionalMantissa(m.CollateralFactor)
	if err != nil {
		return fail("collateral factor: %w", err)
	}
	if factor.Gt(MaxCollateralFactor) {
		return fail("collateral factor %s above 0.9", m.CollateralFactor)
	}
	rate, err := parseOptionalMantissa(m.ExchangeRate)
	if err != nil {
		return fail("exchange rate: %w", err)
	}
	if rate.IsZero() {
		return fail("exchange rate must be positive")
	}
	price, err := parseOptionalMantissa(m.Price)
	if err != nil {
		return fail("price: %w", err)
	}
	if !factor.IsZero() && price.IsZero() {
		return fail("collateral factor requires a price")
	}
	for name, value := range map[string]string{
		"borrow cap":              m.BorrowCap,
		"cash":                    m.Cash,
		"governance supply speed": m.GovernanceSupplySpeed,
		"governance borrow speed": m.GovernanceBorrowSpeed,
		"native supply speed":     m.NativeSupplySpeed,
		"native borrow speed":     m.NativeBorrowSpeed,
	} {
		if _, err := ParseAmount(value); err != nil {
			return fail("%s: %w", name, err)
		}
	}
	return addr, nil
}
