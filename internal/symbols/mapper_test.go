package symbols

import "testing"

func TestToNSE(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nifty", "NIFTY"},
		{" banknifty ", "BANKNIFTY"},
		{"Nifty 50", "NIFTY"},
		{"NIFTY BANK", "BANKNIFTY"},
		{"niftymidcap", "MIDCPNIFTY"},
		{"reliance", "RELIANCE"},
	}
	for _, tt := range tests {
		if got := ToNSE(tt.in); got != tt.want {
			t.Errorf("ToNSE(%q)=%s want %s", tt.in, got, tt.want)
		}
	}
}

func TestChainPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NIFTY", "option-chain-indices?symbol=NIFTY"},
		{"bank nifty", "option-chain-indices?symbol=BANKNIFTY"},
		{"RELIANCE", "option-chain-equities?symbol=RELIANCE"},
		{"M&M", "option-chain-equities?symbol=M%26M"},
	}
	for _, tt := range tests {
		if got := ChainPath(tt.in); got != tt.want {
			t.Errorf("ChainPath(%q)=%s want %s", tt.in, got, tt.want)
		}
	}
}

func TestIsIndex(t *testing.T) {
	if !IsIndex("finnifty") {
		t.Fatal("FINNIFTY is an index")
	}
	if IsIndex("TCS") {
		t.Fatal("TCS is an equity")
	}
}
