package lipsync

import "github.com/normanking/cortexlipsync/internal/viseme"

const (
	JawBaseAngle    = -90.0
	JawRange        = 30.0
	TongueRange     = 80.0
	TongueBaseAngle = -5.0
)

type boneWeight struct {
	id viseme.ID
	w  float32
}

var jawWeights = [...]boneWeight{
	{viseme.TH, 0.2},
	{viseme.DD, 0.1},
	{viseme.KK, 0.5},
	{viseme.NN, 0.2},
	{viseme.RR, 0.2},
	{viseme.AA, 1.0},
	{viseme.E, 0.2},
	{viseme.IH, 0.3},
	{viseme.OH, 0.8},
	{viseme.OU, 0.3},
}

var tongueWeights = [...]boneWeight{
	{viseme.TH, 0.1},
	{viseme.NN, 0.2},
	{viseme.RR, 0.15},
}

// Coefficient sums of the tables above. Keep in sync with them.
const (
	jawWeightSum    = 0.2 + 0.1 + 0.5 + 0.2 + 0.2 + 1.0 + 0.2 + 0.3 + 0.8 + 0.3
	tongueWeightSum = 0.1 + 0.2 + 0.15
)

// BoneAngles are local Z rotations in degrees.
type BoneAngles struct {
	Jaw    float32 `json:"jaw"`
	Tongue float32 `json:"tongue"`
}

// IdleAngles is the neutral jaw/tongue pose.
var IdleAngles = BoneAngles{Jaw: JawBaseAngle, Tongue: TongueBaseAngle}

// ComputeBoneAngles derives jaw and tongue rotation from a frame.
func ComputeBoneAngles(frame viseme.Frame) BoneAngles {
	return BoneAngles{
		Jaw:    JawBaseAngle - weightedSum(frame, jawWeights[:])/jawWeightSum*JawRange,
		Tongue: weightedSum(frame, tongueWeights[:])/tongueWeightSum*TongueRange + TongueBaseAngle,
	}
}

func weightedSum(frame viseme.Frame, weights []boneWeight) float32 {
	var sum float32
	for _, bw := range weights {
		sum += bw.w * frame[bw.id]
	}
	return sum
}
