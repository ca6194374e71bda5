package services

// TrackedTickers is the pre-selected universe refreshed by the scheduler.
var TrackedTickers = []string{
	"0700.HK", "0005.HK", "0941.HK", "0388.HK", "1299.HK",
	"2318.HK", "1398.HK", "3988.HK", "0939.HK", "1024.HK",
	"3690.HK", "9988.HK", "1810.HK", "2388.HK", "2899.HK",
	"2269.HK", "2628.HK", "3328.HK", "1378.HK", "2330.HK",
}

var stockNames = map[string]string{
	"0700.HK": "Tencent Holdings",
	"0005.HK": "HSBC Holdings",
	"0941.HK": "China Mobile",
	"0388.HK": "Hong Kong Exchanges",
	"1299.HK": "AIA Group",
	"2318.HK": "Ping An Insurance",
	"1398.HK": "ICBC",
	"3988.HK": "Bank of China",
	"0939.HK": "China Construction Bank",
	"1024.HK": "Kuaishou Technology",
	"3690.HK": "Meituan",
	"9988.HK": "Alibaba Group",
	"1810.HK": "Xiaomi Corporation",
	"2388.HK": "BOC Hong Kong Holdings",
	"2899.HK": "Zijin Mining",
	"2269.HK": "Midea Group",
	"2628.HK": "China Life Insurance",
	"3328.HK": "Bank of Communications",
	"1378.HK": "China Hongqiao Group",
	"2330.HK": "Power Assets Holdings",
}

// StockName returns a display name for the ticker.
func StockName(ticker string) string {
	if name, ok := stockNames[ticker]; ok {
		return name
	}
	return ticker
}
