package rig

import (
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// RigID names a character rig.
type RigID string

// BoneTransform is a bone's local pose.
type BoneTransform struct {
	Euler    mgl32.Vec3 // degrees
	Position mgl32.Vec3
}

// Rotation returns the local rotation as a quaternion.
func (t BoneTransform) Rotation() mgl32.Quat {
	return mgl32.AnglesToQuat(
		mgl32.DegToRad(t.Euler[0]),
		mgl32.DegToRad(t.Euler[1]),
		mgl32.DegToRad(t.Euler[2]),
		mgl32.XYZ,
	)
}

// Rig is an in-memory Sink. Target weights are what the engine wrote; displayed
// weights follow them with frame-rate independent smoothing.
type Rig struct {
	ID RigID

	mu sync.RWMutex

	targetWeights  map[int]float32
	currentWeights map[int]float32
	bones          map[Bone]BoneTransform

	smoothingFactor float32
}

// NewRig creates an empty rig. A smoothing factor of 0 makes displayed weights
// track targets immediately.
func NewRig(id RigID, smoothing float32) *Rig {
	return &Rig{
		ID:              id,
		targetWeights:   make(map[int]float32),
		currentWeights:  make(map[int]float32),
		bones:           make(map[Bone]BoneTransform),
		smoothingFactor: smoothing,
	}
}

func (r *Rig) SetChannelWeight(index int, weight float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targetWeights[index] = weight
	if r.smoothingFactor <= 0 {
		r.currentWeights[index] = weight
	}
}

func (r *Rig) ChannelWeight(index int) float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.targetWeights[index]
}

func (r *Rig) SetBoneLocalRotation(bone Bone, euler mgl32.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.bones[bone]
	t.Euler = euler
	r.bones[bone] = t
}

func (r *Rig) SetBoneLocalPosition(bone Bone, pos mgl32.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.bones[bone]
	t.Position = pos
	r.bones[bone] = t
}

// Bone returns a bone's local transform.
func (r *Rig) Bone(bone Bone) BoneTransform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bones[bone]
}

// Update advances displayed weights toward their targets.
func (r *Rig) Update(dt float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.smoothingFactor <= 0 {
		for idx, w := range r.targetWeights {
			r.currentWeights[idx] = w
		}
		return
	}

	smoothing := r.smoothingFactor
	if dt > 0 {
		smoothing = 1.0 - float32(math.Pow(float64(1.0-r.smoothingFactor), float64(dt*60)))
	}

	for idx, target := range r.targetWeights {
		cur := r.currentWeights[idx]
		r.currentWeights[idx] = cur + (target-cur)*smoothing
	}
}

// DisplayWeight returns the smoothed weight of a channel.
func (r *Rig) DisplayWeight(index int) float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentWeights[index]
}

// Channels returns every channel index written so far, ascending.
func (r *Rig) Channels() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.targetWeights))
	for idx := range r.targetWeights {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Reset clears all weights and bone transforms.
func (r *Rig) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targetWeights = make(map[int]float32)
	r.currentWeights = make(map[int]float32)
	r.bones = make(map[Bone]BoneTransform)
}
