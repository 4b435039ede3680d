package market

import "encoding/json"

// Wire formats of the upstream providers. Only the fields used are decoded.

type jupiterQuote struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SlippageBps          uint16          `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            json.RawMessage `json:"routePlan"`
	Error                string          `json:"error"`
}

type dexScreenerTokens struct {
	Pairs []struct {
		ChainID   string `json:"chainId"`
		BaseToken struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		PriceUSD  string `json:"priceUsd"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

type moralisEVMTokens struct {
	Result []struct {
		TokenAddress     string  `json:"token_address"`
		Symbol           string  `json:"symbol"`
		Name             string  `json:"name"`
		Decimals         uint8   `json:"decimals"`
		Balance          string  `json:"balance"`
		BalanceFormatted string  `json:"balance_formatted"`
		USDValue         float64 `json:"usd_value"`
		NativeToken      bool    `json:"native_token"`
	} `json:"result"`
}

type moralisSolanaPortfolio struct {
	NativeBalance struct {
		Lamports string `json:"lamports"`
		Solana   string `json:"solana"`
	} `json:"nativeBalance"`
	Tokens []struct {
		Mint            string `json:"mint"`
		Symbol          string `json:"symbol"`
		Name            string `json:"name"`
		Decimals        uint8  `json:"decimals"`
		Amount          string `json:"amountRaw"`
		AmountFormatted string `json:"amount"`
	} `json:"tokens"`
}
