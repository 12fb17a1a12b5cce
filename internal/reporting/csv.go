package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

// RenderCSV renders the report's alerts as CSV, one row per alert. List
// fields are joined with ';'.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{"alert_id", "timestamp", "strategy", "wallet", "votes", "total_votes",
		"confidence", "members", "mints", "hold_seconds", "market_cap_usd"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, a := range r.Alerts {
		row := []string{
			a.ID,
			a.Timestamp.Format(time.RFC3339Nano),
			a.Strategy,
			a.Wallet,
			strconv.Itoa(a.Votes),
			strconv.Itoa(a.TotalVotes),
			strconv.FormatFloat(a.Confidence, 'f', 6, 64),
			strings.Join(a.Evidence.Members, ";"),
			strings.Join(a.Evidence.Mints, ";"),
			strconv.FormatFloat(a.Evidence.HoldSeconds, 'f', 3, 64),
			a.Evidence.MarketCapUSD,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}
