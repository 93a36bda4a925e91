// Package viseme defines the 15-viseme taxonomy and the per-buffer amplitude frame
// produced by a lip-sync analyzer.
package viseme

// ID is an Oculus-style viseme index.
type ID int

const (
	Sil ID = iota // Silence
	PP            // p, b, m
	FF            // f, v
	TH            // th (dental)
	DD            // t, d
	KK            // k, g
	CH            // ch, j, sh
	SS            // s, z
	NN            // n, l
	RR            // r
	AA            // a (as in "father")
	E             // e (as in "bed")
	IH            // i (as in "sit")
	OH            // o (as in "go")
	OU            // u (as in "boot")
	Count
)

// Names are the canonical role names, indexed by ID.
var Names = [Count]string{
	"sil",
	"PP",
	"FF",
	"TH",
	"DD",
	"kk",
	"CH",
	"SS",
	"nn",
	"RR",
	"aa",
	"E",
	"ih",
	"oh",
	"ou",
}

// Valid reports whether id is inside the taxonomy.
func (id ID) Valid() bool {
	return id >= 0 && id < Count
}

func (id ID) String() string {
	if !id.Valid() {
		return "unknown"
	}
	return Names[id]
}

// Parse resolves a role name. Matching is exact, like the names analyzers emit.
func Parse(name string) (ID, bool) {
	for i, n := range Names {
		if n == name {
			return ID(i), true
		}
	}
	return -1, false
}

// Frame holds one amplitude per viseme, nominally in [0,1].
// It is a value type: copies are independent snapshots.
type Frame [Count]float32

// Get returns the amplitude for id, or 0 for ids outside the taxonomy.
func (f *Frame) Get(id ID) float32 {
	if !id.Valid() {
		return 0
	}
	return f[id]
}

// Set stores an amplitude. Out-of-range ids are ignored.
func (f *Frame) Set(id ID, v float32) {
	if !id.Valid() {
		return
	}
	f[id] = v
}

// Scale returns a copy with every amplitude multiplied by k.
func (f Frame) Scale(k float32) Frame {
	for i := range f {
		f[i] *= k
	}
	return f
}

// Add returns the element-wise sum of two frames.
func (f Frame) Add(other Frame) Frame {
	for i := range f {
		f[i] += other[i]
	}
	return f
}

// Dominant returns the viseme with the largest amplitude. Ties resolve to the lower id.
func (f *Frame) Dominant() ID {
	best := Sil
	for i := range f {
		if f[i] > f[best] {
			best = ID(i)
		}
	}
	return best
}

// Single builds a frame with only id set to amplitude.
func Single(id ID, amplitude float32) Frame {
	var f Frame
	f.Set(id, amplitude)
	return f
}

// FromMap builds a frame from role-name keyed amplitudes. Unknown names are skipped.
func FromMap(m map[string]float32) Frame {
	var f Frame
	for name, v := range m {
		if id, ok := Parse(name); ok {
			f[id] = v
		}
	}
	return f
}
