// Package simulate generates sensor readings and publishes them as site
// telemetry, for exercising the ingest path without hardware.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"minewatch-server/internal/modules/sensors/sites"
	"minewatch-server/internal/modules/sensors/types"
	"minewatch-server/internal/telemetry"
)

type Publisher interface {
	PublishReading(t telemetry.Telemetry) error
}

type Options struct {
	Site     string
	Count    int
	Interval time.Duration
	// Fixed, when set, is published on every step instead of generated values.
	Fixed  *types.Values
	Danger bool
	Seed   uint64
}

func (o Options) Validate() error {
	if _, ok := sites.Lookup(o.Site); !ok {
		return fmt.Errorf("unknown site %q", o.Site)
	}
	if o.Count <= 0 {
		return errors.New("count must be > 0")
	}
	if o.Interval < 0 {
		return errors.New("interval must be >= 0")
	}
	if o.Fixed != nil {
		if err := o.Fixed.Validate(); err != nil {
			return fmt.Errorf("fixed values: %w", err)
		}
	}
	return nil
}

// band is an inclusive value range for one channel.
type band struct{ lo, hi float64 }

var (
	normalBands = [4]band{{0.2, 0.9}, {25, 55}, {0.8, 2.0}, {30, 70}}
	dangerBands = [4]band{{1.6, 2.0}, {85, 100}, {4.2, 5.0}, {90, 100}}
)

// Generator draws readings uniformly inside the normal or danger bands.
type Generator struct {
	rnd    *rand.Rand
	danger bool
}

func NewGenerator(seed uint64, danger bool) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), danger: danger}
}

func (g *Generator) Next() types.Values {
	bands := normalBands
	if g.danger {
		bands = dangerBands
	}
	draw := func(b band) float64 { return b.lo + g.rnd.Float64()*(b.hi-b.lo) }
	return types.Values{
		Vibration:   round1(draw(bands[0])),
		Temperature: int(math.Round(draw(bands[1]))),
		Pressure:    round1(draw(bands[2])),
		Humidity:    int(math.Round(draw(bands[3]))),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ParseValues reads "getaran,suhu,tekanan,kelembapan", e.g. "1.8,90,4.5,95".
func ParseValues(s string) (types.Values, error) {
	parts := strings.Split(s, ",")
	if len(parts) != len(types.Channels) {
		return types.Values{}, fmt.Errorf("want %d comma-separated values, got %d", len(types.Channels), len(parts))
	}
	nums := make([]float64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Values{}, fmt.Errorf("%s: %w", types.Channels[i], err)
		}
		nums[i] = n
	}
	v := types.Values{
		Vibration:   nums[0],
		Temperature: int(math.Round(nums[1])),
		Pressure:    nums[2],
		Humidity:    int(math.Round(nums[3])),
	}
	return v, v.Validate()
}

// Run publishes opts.Count readings, waiting opts.Interval between them. It
// returns the number published and stops early on ctx cancellation or the first
// publish error.
func Run(ctx context.Context, pub Publisher, opts Options, now func() time.Time, logger *slog.Logger) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	gen := NewGenerator(opts.Seed, opts.Danger)

	sent := 0
	for sent < opts.Count {
		v := gen.Next()
		if opts.Fixed != nil {
			v = *opts.Fixed
		}
		t := telemetry.FromValues(opts.Site, now(), v)
		if err := pub.PublishReading(t); err != nil {
			return sent, fmt.Errorf("publish reading %d: %w", sent+1, err)
		}
		sent++
		logger.Info("reading published", "site", opts.Site, "n", sent, "values", v)

		if sent == opts.Count || opts.Interval == 0 {
			if err := ctx.Err(); err != nil {
				return sent, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
	return sent, nil
}
