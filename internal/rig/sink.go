// Package rig describes the facial rig consumed by the lip-sync engine: blendshape
// channel layout, the sink interface the engine writes to, and an in-memory rig.
package rig

import "github.com/go-gl/mathgl/mgl32"

// Bone identifies one of the two bones the engine rotates.
type Bone string

const (
	BoneJaw    Bone = "jaw"
	BoneTongue Bone = "tongue"
)

// Sink accepts per-tick blendshape weights and bone rotations. Euler angles are in
// degrees, applied as local rotations.
type Sink interface {
	SetChannelWeight(index int, weight float32)
	ChannelWeight(index int) float32
	SetBoneLocalRotation(bone Bone, euler mgl32.Vec3)
}

// PositionSink is implemented by sinks that can also place bones.
type PositionSink interface {
	Sink
	SetBoneLocalPosition(bone Bone, pos mgl32.Vec3)
}
