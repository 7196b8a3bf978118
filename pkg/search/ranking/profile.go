// Package ranking orders results deterministically. Weights are chosen by
// rules from classified signals; nothing here reads the query text.
package ranking

import "math"

type Profile string

const (
	ProfileBalanced Profile = "BALANCED"
	ProfileNearby   Profile = "NEARBY"
)

type Overlay string

const (
	OverlayOpenNow Overlay = "OPEN_NOW"
	OverlayBudget  Overlay = "BUDGET"
	OverlayQuality Overlay = "QUALITY"
)

const (
	MinWeight   = 5.0
	MaxWeight   = 50.0
	TotalWeight = 100.0
)

// Weights are percentages. After Normalize every dimension is within
// [MinWeight, MaxWeight] and the sum is TotalWeight.
type Weights struct {
	Rating   float64 `json:"rating"`
	Reviews  float64 `json:"reviews"`
	Price    float64 `json:"price"`
	OpenNow  float64 `json:"openNow"`
	Distance float64 `json:"distance"`
}

func (w Weights) vector() []float64 {
	return []float64{w.Rating, w.Reviews, w.Price, w.OpenNow, w.Distance}
}

func fromVector(v []float64) Weights {
	return Weights{Rating: v[0], Reviews: v[1], Price: v[2], OpenNow: v[3], Distance: v[4]}
}

func (w Weights) Sum() float64 {
	sum := 0.0
	for _, x := range w.vector() {
		sum += x
	}
	return sum
}

// Signals are the classified inputs to profile selection.
type Signals struct {
	ProximityIntent  bool
	HasCenter        bool
	OpenNowRequested bool
	BudgetIntent     bool
	QualityIntent    bool
}

// Order is the selected ranking recipe, reported in response metadata.
type Order struct {
	Profile     Profile   `json:"profile"`
	Overlays    []Overlay `json:"overlays,omitempty"`
	Weights     Weights   `json:"weights"`
	ReasonCodes []string  `json:"reasonCodes"`
}

var baseProfiles = map[Profile]Weights{
	ProfileBalanced: {Rating: 35, Reviews: 25, Price: 10, OpenNow: 10, Distance: 20},
	ProfileNearby:   {Rating: 20, Reviews: 10, Price: 10, OpenNow: 15, Distance: 45},
}

var overlayFactors = map[Overlay]Weights{
	OverlayOpenNow: {Rating: 1, Reviews: 1, Price: 1, OpenNow: 2.5, Distance: 1},
	OverlayBudget:  {Rating: 1, Reviews: 1, Price: 3, OpenNow: 1, Distance: 1},
	OverlayQuality: {Rating: 1.6, Reviews: 1.4, Price: 1, OpenNow: 1, Distance: 0.8},
}

// SelectProfile is a pure function of the signals.
func SelectProfile(s Signals) Order {
	profile := ProfileBalanced
	if s.ProximityIntent && s.HasCenter {
		profile = ProfileNearby
	}

	order := Order{Profile: profile, ReasonCodes: []string{"PROFILE_" + string(profile)}}
	w := baseProfiles[profile].vector()

	apply := func(o Overlay) {
		f := overlayFactors[o].vector()
		for i := range w {
			w[i] *= f[i]
		}
		order.Overlays = append(order.Overlays, o)
		order.ReasonCodes = append(order.ReasonCodes, "OVERLAY_"+string(o))
	}
	if s.OpenNowRequested {
		apply(OverlayOpenNow)
	}
	if s.BudgetIntent {
		apply(OverlayBudget)
	}
	if s.QualityIntent {
		apply(OverlayQuality)
	}

	order.Weights = Normalize(fromVector(w))
	return order
}

// Normalize projects w onto the bounded simplex: it finds the scale λ for
// which sum(clamp(w_i·λ, MinWeight, MaxWeight)) equals TotalWeight. Raw
// weights are floored at 1 first so the target is always reachable.
func Normalize(w Weights) Weights {
	raw := w.vector()
	for i, x := range raw {
		if math.IsNaN(x) || x < 1 {
			raw[i] = 1
		}
	}

	total := func(lambda float64) float64 {
		sum := 0.0
		for _, x := range raw {
			sum += clamp(x*lambda, MinWeight, MaxWeight)
		}
		return sum
	}

	lo, hi := 0.0, 1.0
	for total(hi) < TotalWeight {
		hi *= 2
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if total(mid) < TotalWeight {
			lo = mid
		} else {
			hi = mid
		}
	}

	out := make([]float64, len(raw))
	sum := 0.0
	for i, x := range raw {
		out[i] = clamp(x*hi, MinWeight, MaxWeight)
		sum += out[i]
	}

	// Bisection leaves a residual in the last bits; interior weights absorb it.
	residual := TotalWeight - sum
	interior := make([]int, 0, len(out))
	for i, x := range out {
		if x > MinWeight && x < MaxWeight {
			interior = append(interior, i)
		}
	}
	if len(interior) > 0 {
		share := residual / float64(len(interior))
		for _, i := range interior {
			out[i] = clamp(out[i]+share, MinWeight, MaxWeight)
		}
	}
	return fromVector(out)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
