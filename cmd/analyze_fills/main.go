package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/adapters/logger"
	"krakenOrderTracker/internal/adapters/sqlite"
	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/utils"
)

var (
	dbPath  = flag.String("db", "./data/order_tracker.db", "sqlite fill journal to analyze")
	csvPath = flag.String("csv", "", "analyze a CSV export instead of the journal")
	since   = flag.Duration("since", 0, "only fills executed within this window (0 = everything)")
	export  = flag.String("export", "", "write the selected fills to this CSV file")
)

func main() {
	flag.Parse()

	fills, err := loadFills()
	if err != nil {
		log.Fatalf("FATAL: Failed to load fills: %v", err)
	}
	if len(fills) == 0 {
		log.Println("No fills found for the selected window.")
		return
	}

	printPairTable(fills)
	printLargestFills(fills)

	if *export != "" {
		if err := utils.WriteFillsToCSV(fills, *export); err != nil {
			log.Fatalf("FATAL: Failed to export fills: %v", err)
		}
		fmt.Printf("\nExported %d fills to %s\n", len(fills), *export)
	}
}

func loadFills() ([]*domain.Fill, error) {
	if *csvPath != "" {
		return utils.ReadFillsFromCSV(*csvPath)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: *dbPath,
		Logger: logger.NewStdLogger(logger.LevelWarn),
	})
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	cutoff := time.Time{} // zero time selects the whole journal
	if *since > 0 {
		cutoff = time.Now().Add(-*since)
	}
	return repo.FindSince(context.Background(), cutoff)
}

// pairStats accumulates per-pair execution totals.
type pairStats struct {
	fills    int
	volume   decimal.Decimal
	notional decimal.Decimal
	fees     decimal.Decimal
}

func printPairTable(fills []*domain.Fill) {
	byPair := make(map[string]*pairStats)
	first, last := fills[0].Time, fills[0].Time
	for _, f := range fills {
		stats, ok := byPair[f.Pair]
		if !ok {
			stats = &pairStats{}
			byPair[f.Pair] = stats
		}
		stats.fills++
		stats.volume = stats.volume.Add(f.Volume)
		stats.notional = stats.notional.Add(f.Price.Mul(f.Volume))
		stats.fees = stats.fees.Add(f.Fee)
		if f.Time.Before(first) {
			first = f.Time
		}
		if f.Time.After(last) {
			last = f.Time
		}
	}

	pairs := make([]string, 0, len(byPair))
	for pair := range byPair {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	fmt.Printf("Analyzed %d fills from %s to %s\n\n", len(fills),
		first.UTC().Format(time.RFC3339), last.UTC().Format(time.RFC3339))

	fmt.Println("## Execution by Pair")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Pair\tFills\tVolume\tVWAP\tFees\t")

	var totalVolume, totalNotional, totalFees decimal.Decimal
	for _, pair := range pairs {
		stats := byPair[pair]
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t\n",
			pair,
			stats.fills,
			stats.volume.String(),
			vwap(stats.notional, stats.volume),
			stats.fees.String(),
		)
		totalVolume = totalVolume.Add(stats.volume)
		totalNotional = totalNotional.Add(stats.notional)
		totalFees = totalFees.Add(stats.fees)
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%s\t%s\t%s\t\n", len(fills), totalVolume.String(), vwap(totalNotional, totalVolume), totalFees.String())
	w.Flush()
}

func printLargestFills(fills []*domain.Fill) {
	ranked := make([]*domain.Fill, len(fills))
	copy(ranked, fills)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Cost.GreaterThan(ranked[j].Cost)
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}

	fmt.Println("\n## Largest Fills")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Trade\tOrder\tPair\tSide\tVolume\tPrice\tCost\tExecuted\t")
	for _, f := range ranked {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			f.TradeID,
			f.OrderID,
			f.Pair,
			f.Side,
			f.Volume.String(),
			f.Price.String(),
			f.Cost.String(),
			f.Time.UTC().Format(time.RFC3339),
		)
	}
	w.Flush()
}

func vwap(notional, volume decimal.Decimal) string {
	if volume.IsZero() {
		return "0"
	}
	return notional.Div(volume).StringFixed(5)
}
