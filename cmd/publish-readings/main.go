// Command publish-readings validates a JSON fixture of forecast readings and
// publishes it to the readings topic, feeding the monitor's Kafka ingestion.
// It uses the domain decoder so rejected rows match what ingestion rejects.
//
// Usage:
//
//	go run ./cmd/publish-readings \
//	  -file data/mock/forecast_readings.json \
//	  -brokers localhost:9092 \
//	  -topic forecast-readings
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sort"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	kafkaadapter "github.com/seawhisper/alert-monitor/internal/adapter/kafka"
	"github.com/seawhisper/alert-monitor/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	file := flag.String("file", "data/mock/forecast_readings.json", "JSON array of readings")
	brokers := flag.String("brokers", sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "comma-separated Kafka brokers")
	topic := flag.String("topic", sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "forecast-readings"), "readings topic")
	dryRun := flag.Bool("dry-run", false, "validate and print stats without publishing")
	flag.Parse()

	readings, rejected, err := loadReadings(*file, domain.Now().UTC())
	if err != nil {
		return err
	}
	for _, r := range rejected {
		log.Printf("skipping row %d: %v", r.index, r.err)
	}
	log.Printf("%s: %d valid, %d rejected", *file, len(readings), len(rejected))
	printStats(os.Stdout, readings)

	if *dryRun || len(readings) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	writer := kafkaadapter.NewWriter(sharedcfg.ParseBrokers(*brokers), *topic, logger)
	defer writer.Close()

	if err := writer.PublishReadings(ctx, readings); err != nil {
		return err
	}
	log.Printf("published %d readings to %s", len(readings), *topic)
	return nil
}

type rejectedRow struct {
	index int
	err   error
}

func loadReadings(path string, fallback time.Time) ([]domain.Reading, []rejectedRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read fixture: %w", err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, nil, fmt.Errorf("parse fixture: %w", err)
	}

	readings := make([]domain.Reading, 0, len(rows))
	var rejected []rejectedRow
	for i, row := range rows {
		r, err := domain.ParseReading(row, fallback)
		if err != nil {
			rejected = append(rejected, rejectedRow{index: i, err: err})
			continue
		}
		readings = append(readings, r)
	}
	return readings, rejected, nil
}

func printStats(w io.Writer, readings []domain.Reading) {
	conditions := map[string]int{}
	severities := map[string]int{}
	for _, r := range readings {
		conditions[r.Condition]++
		for _, p := range domain.Parameters {
			v, ok := r.Value(p)
			if !ok {
				continue
			}
			if sev, alert := domain.Classify(p, v); alert {
				severities[fmt.Sprintf("%s/%s", p, sev)]++
			}
		}
	}
	fmt.Fprintln(w, "conditions:")
	printCounts(w, conditions)
	fmt.Fprintln(w, "out-of-range values:")
	printCounts(w, severities)
}

func printCounts(w io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-28s %d\n", k, counts[k])
	}
}
