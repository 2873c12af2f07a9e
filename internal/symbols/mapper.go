package symbols

import (
	"net/url"
	"strings"
)

// indices are the NSE underlyings served by the option-chain-indices
// endpoint. Everything else is treated as an equity.
var indices = map[string]struct{}{
	"NIFTY":      {},
	"BANKNIFTY":  {},
	"FINNIFTY":   {},
	"MIDCPNIFTY": {},
	"NIFTYNXT50": {},
}

var aliases = map[string]string{
	"NIFTY50":       "NIFTY",
	"NIFTY 50":      "NIFTY",
	"BANK NIFTY":    "BANKNIFTY",
	"NIFTYBANK":     "BANKNIFTY",
	"NIFTY BANK":    "BANKNIFTY",
	"FIN NIFTY":     "FINNIFTY",
	"NIFTYFIN":      "FINNIFTY",
	"MIDCAP NIFTY":  "MIDCPNIFTY",
	"NIFTYMIDCAP":   "MIDCPNIFTY",
	"NIFTY NEXT 50": "NIFTYNXT50",
}

// ToNSE converts user input to the symbol NSE expects: upper case, no
// surrounding space, common index spellings folded to the canonical name.
func ToNSE(sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	if canonical, ok := aliases[sym]; ok {
		return canonical
	}
	return sym
}

func IsIndex(sym string) bool {
	_, ok := indices[ToNSE(sym)]
	return ok
}

// ChainPath is the API path, relative to the NSE api base, that serves the
// option chain for sym.
func ChainPath(sym string) string {
	sym = ToNSE(sym)
	endpoint := "option-chain-equities"
	if IsIndex(sym) {
		endpoint = "option-chain-indices"
	}
	return endpoint + "?symbol=" + url.QueryEscape(sym)
}
