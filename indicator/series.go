package indicator

// RollingSeries keeps a bounded window of recent prices and volumes
// for one symbol and exposes the lightweight statistics the trigger
// detection needs. It is owned exclusively by the indicator engine.
type RollingSeries struct {
	max     int
	prices  []float64
	volumes []float64
}

// NewRollingSeries creates a series bounded to max samples.
func NewRollingSeries(max int) *RollingSeries {
	if max <= 0 {
		max = 16
	}
	return &RollingSeries{max: max}
}

// Add appends a sample, evicting the oldest when the window is full.
func (r *RollingSeries) Add(price, volume float64) {
	r.prices = append(r.prices, price)
	r.volumes = append(r.volumes, volume)
	if len(r.prices) > r.max {
		r.prices = r.prices[len(r.prices)-r.max:]
		r.volumes = r.volumes[len(r.volumes)-r.max:]
	}
}

// Prices returns a copy of the buffered prices, oldest first.
func (r *RollingSeries) Prices() []float64 {
	out := make([]float64, len(r.prices))
	copy(out, r.prices)
	return out
}

// Len returns the number of buffered samples.
func (r *RollingSeries) Len() int { return len(r.prices) }

// LastPrice returns the most recent price, or 0 when empty.
func (r *RollingSeries) LastPrice() float64 {
	if len(r.prices) == 0 {
		return 0
	}
	return r.prices[len(r.prices)-1]
}

// LastVolume returns the most recent volume, or 0 when empty.
func (r *RollingSeries) LastVolume() float64 {
	if len(r.volumes) == 0 {
		return 0
	}
	return r.volumes[len(r.volumes)-1]
}

// ChangePercent returns the move from the oldest to the newest buffered
// price, in percent.
func (r *RollingSeries) ChangePercent() float64 {
	if len(r.prices) < 2 || r.prices[0] == 0 {
		return 0
	}
	return (r.prices[len(r.prices)-1] - r.prices[0]) / r.prices[0] * 100
}

// AvgVolume returns the mean volume over the window, excluding the
// most recent sample so a spike does not inflate its own baseline.
func (r *RollingSeries) AvgVolume() float64 {
	n := len(r.volumes) - 1
	if n <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range r.volumes[:n] {
		sum += v
	}
	return sum / float64(n)
}
