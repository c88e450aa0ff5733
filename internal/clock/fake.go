package clock

// Fake is a manually advanced Clock for tests.
type Fake struct {
	Wall int64
	Mono float64
}

// NewFake returns a Fake positioned at the given wall time.
func NewFake(wall int64) *Fake {
	return &Fake{Wall: wall}
}

func (f *Fake) WallNow() int64 { return f.Wall }

func (f *Fake) MonoNow() float64 { return f.Mono }

// Advance moves both clocks forward by secs.
func (f *Fake) Advance(secs float64) {
	f.Wall += int64(secs)
	f.Mono += secs
}
