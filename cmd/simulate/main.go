// Command simulate generates synthetic floor occupancy readings. It can
// publish them live, the way the floor sensors do, or write a reading export
// for seeding the feed and for cmd/validate.
//
// Usage:
//
//	go run ./cmd/simulate -mode mqtt -interval 30s
//	go run ./cmd/simulate -mode kafka -interval 5s -ticks 100
//	go run ./cmd/simulate -mode export -out data/readings_export.json \
//	  -start 2024-12-04T07:00:00-08:00 -step 15m -ticks 64
//
// Broker addresses, topics and the building layout come from the service
// environment (.env, MQTT_BROKER, KAFKA_BROKERS, FLOORS, ...).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkaadapter "github.com/couchcryptid/occupancy-service/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/occupancy-service/internal/adapter/mqtt"
	"github.com/couchcryptid/occupancy-service/internal/config"
	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/feed"
)

// publisher sends one tick of readings.
type publisher interface {
	publish(ctx context.Context, raws []domain.RawReading) error
	close()
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	mode := flag.String("mode", "mqtt", "output: mqtt, kafka or export")
	interval := flag.Duration("interval", 30*time.Second, "time between live ticks")
	ticks := flag.Int("ticks", 0, "number of ticks to generate (0 = until interrupted; required for export)")
	out := flag.String("out", "", "export output path")
	start := flag.String("start", "", "export start time, RFC 3339 (default: now)")
	step := flag.Duration("step", 15*time.Minute, "time between export ticks")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	g := newGenerator(cfg.Building, cfg.Location, *seed)

	if *mode == "export" {
		if *out == "" || *ticks <= 0 {
			flag.Usage()
			return fmt.Errorf("export mode requires -out and -ticks")
		}
		from := time.Now()
		if *start != "" {
			if from, err = time.Parse(time.RFC3339, *start); err != nil {
				return fmt.Errorf("invalid -start: %w", err)
			}
		}
		return writeExport(*out, g, from, *step, *ticks)
	}

	pub, err := newPublisher(*mode, cfg)
	if err != nil {
		return err
	}
	defer pub.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for n := 0; *ticks == 0 || n < *ticks; n++ {
		raws := g.tick(domain.Now())
		if err := pub.publish(ctx, raws); err != nil {
			return err
		}
		log.Printf("tick %d: published %d readings (%s)", n+1, len(raws), *mode)
		if n+1 == *ticks {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func newPublisher(mode string, cfg *config.Config) (publisher, error) {
	switch mode {
	case "mqtt":
		if cfg.MQTTBroker == "" {
			return nil, fmt.Errorf("mqtt mode requires MQTT_BROKER")
		}
		p, err := mqttadapter.NewPublisher(cfg.MQTTBroker, cfg.MQTTClientID+"-simulator", cfg.MQTTTopic)
		if err != nil {
			return nil, err
		}
		return mqttPublisher{p}, nil
	case "kafka":
		w := kafkaadapter.NewWriter(cfg, slog.Default())
		return kafkaPublisher{w}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

type mqttPublisher struct{ p *mqttadapter.Publisher }

func (m mqttPublisher) publish(_ context.Context, raws []domain.RawReading) error {
	for _, raw := range raws {
		if err := m.p.Publish(raw); err != nil {
			return err
		}
	}
	return nil
}

func (m mqttPublisher) close() { m.p.Close() }

type kafkaPublisher struct{ w *kafkaadapter.Writer }

func (k kafkaPublisher) publish(ctx context.Context, raws []domain.RawReading) error {
	return k.w.PublishBatch(ctx, raws)
}

func (k kafkaPublisher) close() {
	if err := k.w.Close(); err != nil {
		log.Printf("kafka writer close: %v", err)
	}
}

// writeExport generates ticks readings step apart and writes them in the
// export format the service seeds from.
func writeExport(path string, g *generator, from time.Time, step time.Duration, ticks int) error {
	f := feed.New(0)
	for n := range ticks {
		if _, err := f.AppendBatch(g.tick(from.Add(time.Duration(n) * step))); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer file.Close()

	if err := feed.EncodeExport(file, f.State()); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	log.Printf("wrote %d readings (%d ticks x %d floors) to %s", f.Len(), ticks, len(g.building.Floors), path)
	return nil
}

// generator produces plausible device counts that follow a library's daily
// rhythm: quiet overnight, a peak in the early afternoon.
type generator struct {
	building domain.Building
	location *time.Location
	rng      *rand.Rand
}

func newGenerator(b domain.Building, loc *time.Location, seed uint64) *generator {
	if loc == nil {
		loc = time.UTC
	}
	return &generator{building: b, location: loc, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// tick returns one reading per floor, all stamped at.
func (g *generator) tick(at time.Time) []domain.RawReading {
	load := dailyLoad(at.In(g.location))
	raws := make([]domain.RawReading, 0, len(g.building.Floors))
	for _, f := range g.building.Floors {
		capacity, ok := g.building.CapacityOf(f)
		if !ok {
			capacity = 100
		}
		mean := load * float64(capacity)
		count := int(math.Max(0, math.Round(mean+g.rng.NormFloat64()*0.05*float64(capacity))))
		raws = append(raws, domain.RawReading{
			Floor:     string(f),
			Count:     count,
			Timestamp: at.UnixMilli(),
		})
	}
	return raws
}

// dailyLoad is the expected fraction of capacity in use at t.
func dailyLoad(t time.Time) float64 {
	hour := float64(t.Hour()) + float64(t.Minute())/60
	if hour < 7 {
		return 0.02
	}
	// Gaussian bump centred on 14:00.
	return 0.05 + 0.8*math.Exp(-math.Pow(hour-14, 2)/(2*3.5*3.5))
}
