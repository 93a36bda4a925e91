package viseme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		want   ID
		wantOK bool
	}{
		{"sil", Sil, true},
		{"PP", PP, true},
		{"kk", KK, true},
		{"ih", IH, true},
		{"ou", OU, true},
		{"KK", -1, false},
		{"", -1, false},
		{"xx", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "aa", AA.String())
	assert.Equal(t, "unknown", ID(99).String())
	assert.Equal(t, "unknown", ID(-1).String())
}

func TestFrameGetSetIgnoresOutOfRange(t *testing.T) {
	var f Frame
	f.Set(ID(42), 1)
	f.Set(AA, 0.5)

	assert.Equal(t, float32(0), f.Get(ID(42)))
	assert.Equal(t, float32(0.5), f.Get(AA))
}

func TestFrameScaleAndAdd(t *testing.T) {
	a := Single(DD, 0.5)
	b := Single(KK, 0.25)

	sum := a.Add(b)
	assert.Equal(t, float32(0.5), sum[DD])
	assert.Equal(t, float32(0.25), sum[KK])

	scaled := sum.Scale(2)
	assert.Equal(t, float32(1), scaled[DD])
	assert.Equal(t, float32(0.5), scaled[KK])
	// Originals are untouched.
	assert.Equal(t, float32(0.5), a[DD])
}

func TestFrameDominant(t *testing.T) {
	var f Frame
	assert.Equal(t, Sil, f.Dominant())

	f[AA] = 0.4
	f[OH] = 0.7
	assert.Equal(t, OH, f.Dominant())
}

func TestFromMap(t *testing.T) {
	f := FromMap(map[string]float32{"aa": 0.8, "nope": 1, "SS": 0.2})
	assert.Equal(t, float32(0.8), f[AA])
	assert.Equal(t, float32(0.2), f[SS])
	assert.Equal(t, float32(0), f[Sil])
}
