package comptroller

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validGenesis() Config {
	cfg := DefaultConfig()
	cfg.Admin = "0x00000000000000000000000000000000000000ad"
	cfg.Markets = []MarketConfig{{
		Address:          "0x0000000000000000000000000000000000000c01",
		Symbol:           "lETH",
		CollateralFactor: "0.75",
		ExchangeRate:     "0.02",
		Price:            "2000",
	}}
	return cfg
}

func TestConfigValidateReportsMarketErrors(t *testing.T) {
	require.NoError(t, validGenesis().Validate())

	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing admin", func(c *Config) { c.Admin = "" }, "comptroller: admin must be set"},
		{"bad guardian", func(c *Config) { c.PauseGuardian = "0x12" }, "comptroller: pause guardian:"},
		{"close factor", func(c *Config) { c.CloseFactor = "0.95" }, "comptroller: close factor 0.95 outside"},
		{"missing address", func(c *Config) { c.Markets[0].Address = "" }, "comptroller: markets[0]: address must be set"},
		{"zero rate", func(c *Config) { c.Markets[0].ExchangeRate = "" }, "comptroller: markets[0]: exchange rate must be positive"},
		{"factor without price", func(c *Config) { c.Markets[0].Price = "" }, "comptroller: markets[0]: collateral factor requires a price"},
		{"bad cash", func(c *Config) { c.Markets[0].Cash = "1.5" }, "comptroller: markets[0]: cash:"},
		{"blank symbol", func(c *Config) { c.Markets[0].Symbol = "  " }, "comptroller: markets[0]:"},
		{"duplicate", func(c *Config) { c.Markets = append(c.Markets, c.Markets[0]) }, "comptroller: markets[1]: duplicate address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validGenesis()
			cfg.Markets = append([]MarketConfig(nil), cfg.Markets...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	cfg := validGenesis()
	cfg.Markets[0].Address = "0xnothex"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidInput)
}

func TestNormalizeSymbol(t *testing.T) {
	got, err := NormalizeSymbol(" ｌＵＳＤＣ ")
	require.NoError(t, err)
	require.Equal(t, "lUSDC", got)

	got, err = NormalizeSymbol("lAVAX")
	require.NoError(t, err)
	require.Equal(t, "lAVAX", got)

	for _, bad := range []string{"", "   ", "l USDC", "l\tX", "l\x00X", "lXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"} {
		_, err := NormalizeSymbol(bad)
		require.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}
