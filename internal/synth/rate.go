package synth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Rate bounds, as a percentage offset from normal speed.
const (
	MinRatePercent = -50
	MaxRatePercent = 100
	RateStep       = 10
)

// ErrRateOutOfRange is returned for rates outside [MinRatePercent, MaxRatePercent].
var ErrRateOutOfRange = errors.New("rate must be between -50% and +100%")

// Rate is a speaking-rate offset in percent; the zero value is normal speed.
// Rates are comparable and equal rates are interchangeable for caching.
type Rate struct {
	Percent int
}

// DefaultRate is normal speed.
var DefaultRate = Rate{}

// ParseRate parses values like "+25%", "-10%", "0" or "15".
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultRate, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	r := Rate{Percent: n}
	if err := r.Validate(); err != nil {
		return Rate{}, err
	}
	return r, nil
}

// Validate reports whether r is inside the supported range.
func (r Rate) Validate() error {
	if r.Percent < MinRatePercent || r.Percent > MaxRatePercent {
		return fmt.Errorf("%s: %w", r, ErrRateOutOfRange)
	}
	return nil
}

// String formats the rate as a signed percentage, e.g. "+10%".
func (r Rate) String() string {
	return fmt.Sprintf("%+d%%", r.Percent)
}

// Step returns r moved by delta percent, clamped to the supported range.
func (r Rate) Step(delta int) Rate {
	p := r.Percent + delta
	p = max(p, MinRatePercent)
	p = min(p, MaxRatePercent)
	return Rate{Percent: p}
}

// Speed returns the rate as a multiplier, 1.0 being normal speed.
func (r Rate) Speed() float64 {
	return 1 + float64(r.Percent)/100
}

// LengthScale converts the rate to Piper's length_scale, where larger values
// are slower.
func (r Rate) LengthScale() float64 {
	return 1 / r.Speed()
}

// SpeakingRate converts the rate to Google's speaking_rate in [0.25, 4.0].
func (r Rate) SpeakingRate() float64 {
	return min(max(r.Speed(), 0.25), 4.0)
}
