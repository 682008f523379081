package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/trapmail/filter"
	"github.com/dhcgn/trapmail/inspect"
	"github.com/dhcgn/trapmail/mbox"
	"github.com/dhcgn/trapmail/stats"
	"github.com/dhcgn/trapmail/store"
)

// Categories counted by the stats command.
const (
	categoryEnvelopeFrom = "Envelope-From"
	categoryEnvelopeTo   = "Envelope-To"
	categorySubject      = "Subject"
	categoryFrom         = "From"
	categoryTo           = "To"
)

var statsCategories = []string{categoryEnvelopeFrom, categoryEnvelopeTo, categorySubject, categoryFrom, categoryTo}

type statsCounter struct {
	counts   map[string]map[string]int
	messages int
	skipped  int
	corrupt  int
}

func newStatsCounter() *statsCounter {
	c := &statsCounter{counts: make(map[string]map[string]int)}
	for _, name := range statsCategories {
		c.counts[name] = make(map[string]int)
	}
	return c
}

func (c *statsCounter) add(category string, values ...string) {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			c.counts[category][v]++
		}
	}
}

// addMessage counts the header fields of raw. Envelope values come from the X-Trapmail
// annotations when the message was exported by trapmail.
func (c *statsCounter) addMessage(raw []byte, envFrom string, envTo []string) {
	c.messages++
	c.add(categoryEnvelopeFrom, envFrom)
	c.add(categoryEnvelopeTo, envTo...)

	summary, err := inspect.Summarize(raw)
	if err != nil {
		return
	}
	c.add(categorySubject, summary.Subject)
	c.add(categoryFrom, summary.From...)
	c.add(categoryTo, summary.To...)
}

func newStatsCommand() *cobra.Command {
	var (
		reportDir string
		topN      int
	)

	cmd := &cobra.Command{
		Use:   "stats [mbox file]",
		Short: "Show the most frequent senders, recipients and subjects",
		Long: "Count envelope and header values over the stored records, or over an mbox file " +
			"such as one written by `trapmail export`.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := toolSetup(cmd, true)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			f, err := filter.New(cfg.Filters)
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			counter := newStatsCounter()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				mboxPath := args[0]
				fmt.Fprintln(out, "Analyzing mbox file:", mboxPath)
				err = mbox.Read(mboxPath, func(raw []byte) error {
					if !f.Allows(filter.SplitRawMessage(raw)) {
						counter.skipped++
						return nil
					}
					envFrom, envTo := annotatedEnvelope(raw)
					counter.addMessage(raw, envFrom, envTo)
					return nil
				})
				if err != nil {
					return fmt.Errorf("error reading mbox file: %w", err)
				}
			} else {
				// The filter is applied here rather than as a predicate so skips are counted.
				base := cfg
				base.Filters = filter.Options{}
				preds, err := selection(cmd, base, time.Now())
				if err != nil {
					return err
				}

				s := store.Open(cfg.StoreDir())
				fmt.Fprintln(out, "Analyzing store:", s.Dir())
				for entry, err := range s.Records(preds...) {
					if err != nil {
						if errors.Is(err, store.ErrRecordCorrupt) {
							counter.corrupt++
							logger.Warn("skipping corrupt record", "name", entry.Name, "err", err)
							continue
						}
						return err
					}
					if !f.Matches(entry.Record) {
						counter.skipped++
						continue
					}
					env := entry.Record.Envelope
					counter.addMessage(entry.Record.Message, env.Sender, env.Recipients)
				}
			}

			printStats(out, counter, f.GetStats(), topN)

			if reportDir != "" {
				if err := saveCSVReports(counter.counts, statsCategories, reportDir, 1000); err != nil {
					return fmt.Errorf("error saving CSV reports: %w", err)
				}
				fmt.Fprintf(out, "\nReports saved to directory: %s\n", reportDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportDir, "output", "o", "", "Output directory for CSV reports (empty disables them)")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	registerSelectFlags(cmd)
	return cmd
}

// annotatedEnvelope reads the envelope that Annotate stored in the message header.
func annotatedEnvelope(raw []byte) (string, []string) {
	h, _, err := inspect.Parse(raw)
	if err != nil {
		return "", nil
	}
	var to []string
	for _, rcpt := range strings.Split(h.Get(inspect.HeaderEnvelopeTo), ",") {
		if rcpt = strings.TrimSpace(rcpt); rcpt != "" {
			to = append(to, rcpt)
		}
	}
	return h.Get(inspect.HeaderEnvelopeFrom), to
}

func printStats(w io.Writer, c *statsCounter, fs filter.Stats, topN int) {
	total := c.messages + c.skipped
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(c.skipped) / float64(total) * 100
	}
	fmt.Fprintf(w, "Processed %d messages (skipped %d by filters, %.2f%%)", c.messages, c.skipped, filterPercent)
	if c.corrupt > 0 {
		fmt.Fprintf(w, ", %d corrupt", c.corrupt)
	}
	fmt.Fprint(w, "\n\n")

	groups := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Include Header Filters", fs.IncludeHeaderPatterns, fs.IncludeHeaderHits},
		{"Include Body Filters", fs.IncludeBodyPatterns, fs.IncludeBodyHits},
		{"Exclude Header Filters", fs.ExcludeHeaderPatterns, fs.ExcludeHeaderHits},
		{"Exclude Body Filters", fs.ExcludeBodyPatterns, fs.ExcludeBodyHits},
	}
	hasFilterStats := false
	for _, g := range groups {
		if len(g.patterns) == 0 {
			continue
		}
		hasFilterStats = true
		fmt.Fprintf(w, "%s:\n", g.title)
		printFilterHits(w, g.patterns, g.hits)
		fmt.Fprintln(w)
	}
	if hasFilterStats {
		fmt.Fprint(w, "---\n\n")
	}

	for _, category := range statsCategories {
		fmt.Fprintf(w, "Top %d %s:\n", topN, category)
		stats.PrettyPrintTop(w, c.counts[category], topN)
		fmt.Fprintln(w)
	}
}

func printFilterHits(w io.Writer, patterns []string, hits map[string]int) {
	sorted := append([]string(nil), patterns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if hits[sorted[i]] != hits[sorted[j]] {
			return hits[sorted[i]] > hits[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})

	for _, p := range sorted {
		if n := hits[p]; n > 0 {
			fmt.Fprintf(w, "  ✓ %s: %d hits\n", p, n)
		} else {
			fmt.Fprintf(w, "  ✗ %s: 0 hits\n", p)
		}
	}
}

func saveCSVReports(counter map[string]map[string]int, categories []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, category := range categories {
		filename := fmt.Sprintf("report_%s.csv", normalizeCategoryName(category))
		if err := writeCSVReport(filepath.Join(dir, filename), counter[category], limit); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVReport(path string, counts map[string]int, limit int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range stats.Top(counts, limit) {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeCategoryName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}
