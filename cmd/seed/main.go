// Command seed generates a demo dataset of booking attempts for the risk gate
// and writes it to data/attempts.json.
//
// Usage:
//
//	go run ./cmd/seed [-out data/attempts.json] [-seed 42]
//
// The dataset spans the last 48 hours and mixes:
//   - routine daytime bookings from allowed countries within each tour's band
//   - booking bursts (several attempts from one email inside an hour)
//   - off-hours, out-of-band attempts from outside the allow-list
//   - attempts for tours the rule set does not know
//
// Feed it to the server with `go run ./cmd/server -replay data/attempts.json`.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/rules"
)

func main() {
	out := flag.String("out", "data/attempts.json", "output file")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	base := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	rs := rules.Default()

	g := &generator{rng: rng, base: base, rules: rs, nextID: 1000}
	var attempts []domain.TransactionAttempt
	attempts = append(attempts, g.routine()...)
	attempts = append(attempts, g.bursts()...)
	attempts = append(attempts, g.offHoursForeign()...)
	attempts = append(attempts, g.unknownTours()...)

	// Shuffle so patterns aren't trivially grouped in the file.
	rng.Shuffle(len(attempts), func(i, j int) {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	})

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(attempts); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d attempts → %s\n", len(attempts), *out)
}

type generator struct {
	rng    *rand.Rand
	base   time.Time
	rules  *rules.RuleSet
	nextID int
}

func (g *generator) id() string {
	g.nextID++
	return fmt.Sprintf("att_%05d", g.nextID)
}

// inBand picks an amount inside the tour's band.
func (g *generator) inBand(tour string) int64 {
	b, _ := g.rules.Band(tour)
	return b.Min + g.rng.Int63n(b.Max-b.Min+1)
}

// daytime returns a timestamp on day d between 08:00 and 21:59.
func (g *generator) daytime(d int) time.Time {
	return g.base.Add(time.Duration(d)*24*time.Hour +
		time.Duration(8+g.rng.Intn(14))*time.Hour +
		time.Duration(g.rng.Intn(60))*time.Minute)
}

// ─── Routine travellers ───────────────────────────────────────────────────────

type traveller struct {
	email   string
	country string
	ip      string
}

var travellers = []traveller{
	{"hana.sato@example.jp", "JP", "203.0.113.10"},
	{"mike.jones@example.com", "US", "198.51.100.21"},
	{"olivia.brown@example.co.uk", "GB", "198.51.100.34"},
	{"liam.tremblay@example.ca", "CA", "203.0.113.45"},
	{"chloe.nguyen@example.com.au", "AU", "203.0.113.56"},
	{"aroha.parata@example.nz", "NZ", "198.51.100.67"},
	{"wei.tan@example.sg", "SG", "203.0.113.78"},
	{"kenji.mori@example.jp", "JP", ""},
}

var tours = []string{"night-tour", "food-tour", "day-trip-fuji", "temple-walk", "private-guide"}

func (g *generator) routine() []domain.TransactionAttempt {
	var out []domain.TransactionAttempt
	for _, t := range travellers {
		// One or two bookings a day, never close enough to look like a burst.
		for d := 0; d < 2; d++ {
			for n := 1 + g.rng.Intn(2); n > 0; n-- {
				tour := tours[g.rng.Intn(len(tours))]
				out = append(out, domain.TransactionAttempt{
					ID:          g.id(),
					Email:       t.email,
					Amount:      g.inBand(tour),
					TourID:      tour,
					CountryCode: t.country,
					IP:          t.ip,
					Timestamp:   g.daytime(d),
				})
			}
		}
	}
	return out
}

// ─── Booking bursts ───────────────────────────────────────────────────────────

func (g *generator) bursts() []domain.TransactionAttempt {
	var out []domain.TransactionAttempt
	for i, email := range []string{"group.organiser@example.com", "reseller.bot@example.net"} {
		start := g.base.Add(time.Duration(20+i*6) * time.Hour)
		for n := 0; n < 5; n++ {
			out = append(out, domain.TransactionAttempt{
				ID:          g.id(),
				Email:       email,
				Amount:      g.inBand("food-tour"),
				TourID:      "food-tour",
				CountryCode: "US",
				IP:          fmt.Sprintf("198.51.100.%d", 100+i),
				Timestamp:   start.Add(time.Duration(n*8) * time.Minute),
			})
		}
	}
	return out
}

// ─── Off-hours, foreign, out-of-band ──────────────────────────────────────────

func (g *generator) offHoursForeign() []domain.TransactionAttempt {
	var out []domain.TransactionAttempt
	countries := []string{"RU", "NG", "BR", "VN"}
	for i, c := range countries {
		ts := g.base.Add(24*time.Hour + time.Duration(1+g.rng.Intn(4))*time.Hour)
		out = append(out, domain.TransactionAttempt{
			ID:          g.id(),
			Email:       fmt.Sprintf("card.tester%d@example.org", i+1),
			Amount:      int64(100 + g.rng.Intn(400)),
			TourID:      "night-tour",
			CountryCode: c,
			IP:          fmt.Sprintf("192.0.2.%d", 10+i),
			Timestamp:   ts,
		})
	}
	return out
}

// ─── Unknown tours ────────────────────────────────────────────────────────────

func (g *generator) unknownTours() []domain.TransactionAttempt {
	var out []domain.TransactionAttempt
	for i, tour := range []string{"sumo-morning", "sake-brewery"} {
		t := travellers[i]
		out = append(out, domain.TransactionAttempt{
			ID:          g.id(),
			Email:       t.email,
			Amount:      9000,
			TourID:      tour,
			CountryCode: t.country,
			IP:          t.ip,
			Timestamp:   g.daytime(1),
		})
	}
	return out
}
