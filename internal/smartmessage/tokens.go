package smartmessage

const NativeSymbol = "◎"

var tokenSymbols = map[string]string{
	"":                                             NativeSymbol,
	"4WLSCEkDt3UYEhKqzajDww7NAu9kUgS4yfgjY1CEoH7m": "USDC",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCE8BenwNYB": "USDT",
}

// TokenSymbol returns the display symbol for a token mint. Unknown mints are
// shown as-is.
func TokenSymbol(token string) string {
	if symbol, ok := tokenSymbols[token]; ok {
		return symbol
	}
	return token
}
