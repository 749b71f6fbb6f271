package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"iphone-scraper/models"
	"iphone-scraper/utils"
)

// Aggregator computes per-model statistics over one batch of listings.
type Aggregator struct {
	logger *utils.Logger
}

func NewAggregator(logger *utils.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate groups listings by model family and averages their prices.
// Listings without a family or without a usable price are left out of every
// group, including the counts.
func (a *Aggregator) Aggregate(listings []*models.NormalizedListing) models.AggregateReport {
	type acc struct {
		sum   int64
		count int
	}

	groups := make(map[string]*acc)
	excluded := 0

	for _, l := range listings {
		if l == nil || l.ModelFamily == nil || l.PriceAmount == nil {
			excluded++
			continue
		}
		g, ok := groups[*l.ModelFamily]
		if !ok {
			g = &acc{}
			groups[*l.ModelFamily] = g
		}
		g.sum += *l.PriceAmount
		g.count++
	}

	report := make(models.AggregateReport, len(groups))
	for family, g := range groups {
		report[family] = models.AggregateEntry{
			AveragePrice: meanCents(g.sum, g.count),
			Count:        g.count,
		}
	}

	if excluded > 0 {
		a.logger.Debug("[aggregator] %d of %d listings had no model or price", excluded, len(listings))
	}
	return report
}

// Print writes a human-readable batch report to w.
func (a *Aggregator) Print(w io.Writer, s *models.BatchSummary) {
	title := color.New(color.FgMagenta, color.Bold)
	heading := color.New(color.FgYellow, color.Bold)
	value := color.New(color.Bold)
	price := color.New(color.FgGreen, color.Bold)

	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintln(w)
	title.Fprintln(w, sep)
	title.Fprintln(w, "  IPHONE CATALOG BATCH REPORT")
	title.Fprintln(w, sep)
	fmt.Fprintln(w)

	heading.Fprintln(w, "  Batch")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Run ID                 : %s\n", s.RunID)
	fmt.Fprintf(w, "  Listings processed     : %s\n", value.Sprint(s.Processed))
	fmt.Fprintf(w, "  Stored in catalog      : %s\n", value.Sprint(s.Stored))
	fmt.Fprintf(w, "  Skipped (no id)        : %s\n", value.Sprint(s.SkippedMissingID))
	fmt.Fprintf(w, "  Skipped (bad price)    : %s\n", value.Sprint(s.PriceFailures))
	fmt.Fprintf(w, "  Store failures         : %s\n", value.Sprint(s.StoreFailures))
	fmt.Fprintln(w)

	heading.Fprintln(w, "  Average Price by Model")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(s.Aggregates) == 0 {
		fmt.Fprintln(w, "  No price data available")
	} else {
		for _, family := range SortedFamilies(s.Aggregates) {
			e := s.Aggregates[family]
			fmt.Fprintf(w, "  %-20s %s  (%d listings)\n",
				family, price.Sprintf("%12.2f Ft", e.AveragePrice), e.Count)
		}
	}

	fmt.Fprintln(w)
	title.Fprintln(w, sep)
	fmt.Fprintln(w)
}

// SortedFamilies returns the report's model families by descending count,
// then by name.
func SortedFamilies(r models.AggregateReport) []string {
	families := make([]string, 0, len(r))
	for family := range r {
		families = append(families, family)
	}
	sort.Slice(families, func(i, j int) bool {
		ci, cj := r[families[i]].Count, r[families[j]].Count
		if ci != cj {
			return ci > cj
		}
		return families[i] < families[j]
	})
	return families
}

// meanCents returns sum/count rounded half-up to two decimals. The rounding
// is done on integers so exact ties such as 201/200 never land on a float
// just below the half. sum must be non-negative and count positive.
func meanCents(sum int64, count int) float64 {
	n := int64(count)
	q := (sum*200 + n) / (2 * n)
	return float64(q) / 100
}
