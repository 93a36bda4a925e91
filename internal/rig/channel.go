package rig

import "strings"

// Channel is an articulation blendshape driven by the lip-sync rule table.
type Channel int

const (
	Explosive Channel = iota
	DentalLip
	TightO
	LipOpen
	PressLeft
	PressRight
	ShrugUpper
	DropLower
	ChannelCount
)

// ChannelNames are the morph target names of each channel on a CC-style head mesh.
var ChannelNames = [ChannelCount]string{
	"V_Explosive",
	"V_Dental_Lip",
	"V_Tight_O",
	"V_Lip_Open",
	"Mouth_Press_L",
	"Mouth_Press_R",
	"Mouth_Shrug_Upper",
	"Mouth_Drop_Lower",
}

// DefaultTargets are the head mesh indices of each channel on a CC-style rig.
var DefaultTargets = [ChannelCount]int{
	Explosive:  1,
	DentalLip:  2,
	TightO:     3,
	LipOpen:    7,
	PressLeft:  76,
	PressRight: 77,
	ShrugUpper: 114,
	DropLower:  117,
}

func (c Channel) Valid() bool {
	return c >= 0 && c < ChannelCount
}

func (c Channel) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return ChannelNames[c]
}

// ChannelFromName returns the channel with the given morph target name, or -1.
// Matching ignores case since config keys arrive lowercased.
func ChannelFromName(name string) Channel {
	for i, n := range ChannelNames {
		if strings.EqualFold(n, name) {
			return Channel(i)
		}
	}
	return -1
}
