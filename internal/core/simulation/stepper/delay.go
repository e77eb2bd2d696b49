package stepper

import (
	"math"

	"github.com/zeusync/statesync/pkg/sequence"
)

// DelayConfig tunes the presentation delay control loop. Thresholds are
// fractions of the mean absolute deviation of the sampled time differences.
type DelayConfig struct {
	Window       int     `yaml:"window"`
	EnterAbove   float64 `yaml:"enter_above"`
	EnterBelow   float64 `yaml:"enter_below"`
	Leave        float64 `yaml:"leave"`
	IncreaseRate float64 `yaml:"increase_rate"`
	DecreaseRate float64 `yaml:"decrease_rate"`
	MaxTimeDiff  float64 `yaml:"max_time_diff"`
}

func DefaultDelayConfig() DelayConfig {
	return DelayConfig{
		Window:       20,
		EnterAbove:   0.12,
		EnterBelow:   1.2,
		Leave:        0.6,
		IncreaseRate: 1.7,
		DecreaseRate: 0.33,
		MaxTimeDiff:  1.0,
	}
}

// PresentationDelay keeps the presentation time behind the simulation time
// by roughly the mean plus the mean absolute deviation of the recent gaps
// between wall clock and simulation clock. The delay grows faster than it
// shrinks so presentation leans towards interpolating the past.
type PresentationDelay struct {
	cfg       DelayConfig
	samples   *sequence.Ring[float64]
	delay     float64
	target    float64
	adjusting bool
}

func NewPresentationDelay(cfg DelayConfig) *PresentationDelay {
	return &PresentationDelay{
		cfg:       cfg,
		samples:   sequence.NewRing[float64](cfg.Window),
		adjusting: true,
	}
}

// Update records a new time difference and moves the delay towards the
// target when it drifted outside the hysteresis band. elapsed is the wall
// time since the previous update.
func (p *PresentationDelay) Update(timeDiff, elapsed float64) {
	p.samples.Push(math.Min(timeDiff, p.cfg.MaxTimeDiff))

	n := float64(p.samples.Len())
	mean := sequence.Reduce(p.samples, 0.0, func(acc, v float64) float64 { return acc + v }) / n
	dev := sequence.Reduce(p.samples, 0.0, func(acc, v float64) float64 {
		return acc + math.Abs(v-mean)
	}) / n

	p.target = mean + dev
	diff := p.target - p.delay

	if !p.adjusting && (diff > dev*p.cfg.EnterAbove || diff < -dev*p.cfg.EnterBelow) {
		p.adjusting = true
	}
	if !p.adjusting {
		return
	}

	rate := p.cfg.DecreaseRate
	if diff > 0 {
		rate = p.cfg.IncreaseRate
	}
	p.delay += diff * math.Min(rate*elapsed, 1)

	if math.Abs(diff) < dev*p.cfg.Leave {
		p.adjusting = false
	}
}

// Reset clears the samples and the delay.
func (p *PresentationDelay) Reset() {
	p.samples.Reset()
	p.delay = 0
	p.target = 0
	p.adjusting = true
}

func (p *PresentationDelay) Delay() float64 { return p.delay }

func (p *PresentationDelay) Target() float64 { return p.target }

func (p *PresentationDelay) Adjusting() bool { return p.adjusting }
