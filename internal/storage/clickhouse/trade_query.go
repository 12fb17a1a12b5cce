package clickhouse

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
)

// Event views fed by the upstream indexer. Raydium rows name the bought
// token inputTokenMint and its quantity qtyIn.
const (
	PumpFunView = "pumpfun_from_events_mv"
	RaydiumView = "raydium_from_events_mv"
)

// The views store UI token amounts as Float64. decimals converts them back
// to raw units so amounts that differ only in the fraction stay distinct.
// PumpFun mints use 6 decimals. Raydium mints vary, and 6 stays inside
// Float64 precision for supplies up to 1e9 tokens.
type viewSpec struct {
	market    domain.Market
	table     string
	mintCol   string
	amountCol string
	decimals  int
}

var views = []viewSpec{
	{domain.MarketPumpFun, PumpFunView, "mint", "tokenAmount", 6},
	{domain.MarketRaydium, RaydiumView, "inputTokenMint", "qtyIn", 6},
}

func decimalsFor(m domain.Market) int {
	for _, v := range views {
		if v.market == m {
			return v.decimals
		}
	}
	return 0
}

// rawUnits scales a UI amount to integer raw units, rounding to nearest.
// NaN and non-positive amounts map to 0; overflow saturates.
func rawUnits(amount float64, decimals int) uint64 {
	if math.IsNaN(amount) || amount <= 0 {
		return 0
	}
	scaled := math.Round(amount * math.Pow10(decimals))
	if scaled >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(scaled)
}

// TradeQuery implements storage.TradeQuery over the PumpFun and Raydium event views.
type TradeQuery struct {
	conn     *Conn
	database string
}

// NewTradeQuery creates a TradeQuery. Views are read from database, or from
// the connection's database when empty.
func NewTradeQuery(conn *Conn, database string) *TradeQuery {
	if database == "" {
		database = conn.Database()
	}
	return &TradeQuery{conn: conn, database: database}
}

// Compile-time interface check.
var _ storage.TradeQuery = (*TradeQuery)(nil)

// FetchTrades returns trades matching f, ordered by timestamp ASC.
func (q *TradeQuery) FetchTrades(ctx context.Context, f storage.TradeFilter) ([]domain.TradeEvent, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	query, args := q.build(f)
	if query == "" {
		return nil, nil
	}

	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// build assembles one SELECT per requested market joined with UNION ALL.
func (q *TradeQuery) build(f storage.TradeFilter) (string, []any) {
	var parts []string
	var args []any

	for _, v := range views {
		if len(f.Markets) > 0 && !slices.Contains(f.Markets, v.market) {
			continue
		}

		table := v.table
		if q.database != "" {
			table = q.database + "." + v.table
		}

		where := []string{"ts >= ?"}
		args = append(args, f.Since.UTC())
		if !f.Until.IsZero() {
			where = append(where, "ts < ?")
			args = append(args, f.Until.UTC())
		}
		if len(f.Sides) > 0 {
			marks := make([]string, len(f.Sides))
			for i, s := range f.Sides {
				marks[i] = "?"
				args = append(args, strings.ToLower(s.String()))
			}
			where = append(where, "txType IN ("+strings.Join(marks, ", ")+")")
		}

		parts = append(parts, fmt.Sprintf(`
		SELECT
			ts, %s AS mint, traderPublicKey, toFloat64(%s) AS amount, txType, '%s' AS market
		FROM %s
		WHERE %s`, v.mintCol, v.amountCol, v.market, table, strings.Join(where, " AND ")))
	}

	if len(parts) == 0 {
		return "", nil
	}
	// ORDER BY after a bare UNION ALL binds to the last SELECT only.
	return "SELECT * FROM (" + strings.Join(parts, "\n\t\tUNION ALL") + "\n\t) ORDER BY ts ASC", args
}

// scanTrades scans multiple rows. Rows with an unknown txType are skipped.
func scanTrades(rows chRows) ([]domain.TradeEvent, error) {
	var trades []domain.TradeEvent

	for rows.Next() {
		var (
			ts     time.Time
			e      domain.TradeEvent
			amount float64
			txType string
			market string
		)
		if err := rows.Scan(&ts, &e.Mint, &e.Wallet, &amount, &txType, &market); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		side, ok := domain.ParseSide(txType)
		if !ok {
			continue
		}
		e.Timestamp = ts.UTC()
		e.Side = side
		e.Market = domain.Market(market)
		e.Amount = rawUnits(amount, decimalsFor(e.Market))
		trades = append(trades, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
