/**
 * @description
 * The tracked equity universe (Nifty 50) and the alias table used to map
 * free-form social text onto ticker symbols.
 *
 * @notes
 * - Posts that mention no tracked company are attributed to "NIFTY",
 *   the index-level bucket for general market sentiment.
 */

package symbols

// IndexSymbol is the catch-all bucket for posts with no specific stock mention.
const IndexSymbol = "NIFTY"

// Nifty50 lists the tracked NSE symbols.
var Nifty50 = []string{
	"RELIANCE", "TCS", "HDFCBANK", "INFY", "ICICIBANK",
	"HINDUNILVR", "ITC", "SBIN", "BHARTIARTL", "KOTAKBANK",
	"LT", "AXISBANK", "ASIANPAINT", "MARUTI", "HCLTECH",
	"SUNPHARMA", "TATAMOTORS", "BAJFINANCE", "WIPRO", "TITAN",
	"ULTRACEMCO", "NESTLEIND", "POWERGRID", "NTPC", "TECHM",
	"TATASTEEL", "M&M", "BAJAJFINSV", "INDUSINDBK", "ONGC",
	"JSWSTEEL", "ADANIENT", "ADANIPORTS", "COALINDIA", "GRASIM",
	"CIPLA", "BPCL", "DRREDDY", "EICHERMOT", "DIVISLAB",
	"SBILIFE", "BRITANNIA", "HEROMOTOCO", "APOLLOHOSP", "TATACONSUM",
	"HINDALCO", "BAJAJ-AUTO", "HDFCLIFE", "LTIM", "SHRIRAMFIN",
}

// aliases maps lowercase company names, abbreviations and common slang onto tickers.
// Longer aliases are matched before shorter ones so "hdfc bank" wins over "hdfc".
var aliases = map[string]string{
	"reliance": "RELIANCE", "ril": "RELIANCE", "jio": "RELIANCE", "ambani": "RELIANCE",
	"tcs": "TCS", "tata consultancy": "TCS",
	"hdfc bank": "HDFCBANK", "hdfcbank": "HDFCBANK", "hdfc": "HDFCBANK",
	"infosys": "INFY", "infy": "INFY",
	"icici bank": "ICICIBANK", "icici": "ICICIBANK",
	"hindustan unilever": "HINDUNILVR", "hul": "HINDUNILVR", "hindunilvr": "HINDUNILVR",
	"itc": "ITC",
	"sbi": "SBIN", "state bank": "SBIN", "sbin": "SBIN",
	"airtel": "BHARTIARTL", "bharti airtel": "BHARTIARTL", "bhartiartl": "BHARTIARTL",
	"kotak bank": "KOTAKBANK", "kotak mahindra": "KOTAKBANK", "kotak": "KOTAKBANK",
	"larsen toubro": "LT", "larsen": "LT", "l&t": "LT",
	"axis bank": "AXISBANK", "axis": "AXISBANK",
	"asian paints": "ASIANPAINT", "asian paint": "ASIANPAINT", "asianpaint": "ASIANPAINT",
	"maruti suzuki": "MARUTI", "maruti": "MARUTI",
	"hcl tech": "HCLTECH", "hcltech": "HCLTECH", "hcl": "HCLTECH",
	"sun pharma": "SUNPHARMA", "sunpharma": "SUNPHARMA",
	"tata motors": "TATAMOTORS", "tatamotors": "TATAMOTORS",
	"bajaj finance": "BAJFINANCE", "bajfinance": "BAJFINANCE",
	"wipro": "WIPRO",
	"titan": "TITAN",
	"ultratech cement": "ULTRACEMCO", "ultratech": "ULTRACEMCO",
	"nestle india": "NESTLEIND", "nestle": "NESTLEIND",
	"power grid": "POWERGRID", "powergrid": "POWERGRID",
	"ntpc": "NTPC",
	"tech mahindra": "TECHM", "techm": "TECHM",
	"tata steel": "TATASTEEL", "tatasteel": "TATASTEEL",
	"mahindra mahindra": "M&M", "m&m": "M&M", "mahindra": "M&M",
	"bajaj finserv": "BAJAJFINSV", "bajajfinsv": "BAJAJFINSV",
	"indusind bank": "INDUSINDBK", "indusind": "INDUSINDBK",
	"ongc": "ONGC",
	"jsw steel": "JSWSTEEL", "jsw": "JSWSTEEL",
	"adani enterprises": "ADANIENT", "adanient": "ADANIENT", "adani": "ADANIENT",
	"adani ports": "ADANIPORTS", "adaniports": "ADANIPORTS",
	"coal india": "COALINDIA", "coalindia": "COALINDIA",
	"grasim": "GRASIM",
	"cipla": "CIPLA",
	"bpcl": "BPCL",
	"dr reddy": "DRREDDY", "drreddy": "DRREDDY",
	"eicher": "EICHERMOT", "eichermot": "EICHERMOT",
	"divis lab": "DIVISLAB", "divislab": "DIVISLAB",
	"sbi life": "SBILIFE", "sbilife": "SBILIFE",
	"britannia": "BRITANNIA",
	"hero motocorp": "HEROMOTOCO", "heromotoco": "HEROMOTOCO",
	"apollo hospitals": "APOLLOHOSP", "apollo": "APOLLOHOSP",
	"tata consumer": "TATACONSUM", "tataconsum": "TATACONSUM",
	"hindalco": "HINDALCO",
	"bajaj auto": "BAJAJ-AUTO", "bajaj-auto": "BAJAJ-AUTO",
	"hdfc life": "HDFCLIFE", "hdfclife": "HDFCLIFE",
	"ltimindtree": "LTIM", "ltim": "LTIM",
	"shriram finance": "SHRIRAMFIN", "shriramfin": "SHRIRAMFIN",
	"nifty": IndexSymbol, "nifty50": IndexSymbol, "nifty 50": IndexSymbol,
}

var tracked = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Nifty50)+1)
	for _, s := range Nifty50 {
		m[s] = struct{}{}
	}
	m[IndexSymbol] = struct{}{}
	return m
}()

// IsTracked reports whether the symbol is part of the universe.
func IsTracked(symbol string) bool {
	_, ok := tracked[symbol]
	return ok
}
