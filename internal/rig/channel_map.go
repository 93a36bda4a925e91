package rig

import (
	"sort"

	"github.com/normanking/cortexlipsync/internal/viseme"
)

// ChannelMap resolves viseme roles and articulation channels to blendshape indices
// on the target rig. All lookups are total: anything unresolved lands on the "ou"
// role index.
type ChannelMap struct {
	// Base is added to every index (the rig's first lip-sync blendshape).
	Base int
	// Visemes holds one blendshape index per viseme role.
	Visemes [viseme.Count]int
	// Targets holds the blendshape index of each articulation channel.
	Targets [ChannelCount]int
}

// DefaultChannelMap returns the CC-style layout with roles mapped in taxonomy order.
func DefaultChannelMap() ChannelMap {
	m := ChannelMap{Targets: DefaultTargets}
	for i := range m.Visemes {
		m.Visemes[i] = i
	}
	return m
}

// WithBase returns a copy using a different base offset.
func (m ChannelMap) WithBase(base int) ChannelMap {
	m.Base = base
	return m
}

func (m ChannelMap) fallback() int {
	return m.Base + m.Visemes[viseme.OU]
}

// RoleIndex resolves a viseme role name such as "PP" or "aa".
func (m ChannelMap) RoleIndex(name string) int {
	id, ok := viseme.Parse(name)
	if !ok {
		return m.fallback()
	}
	return m.Base + m.Visemes[id]
}

// VisemeIndex resolves a viseme id.
func (m ChannelMap) VisemeIndex(id viseme.ID) int {
	if !id.Valid() {
		return m.fallback()
	}
	return m.Base + m.Visemes[id]
}

// Index resolves an articulation channel.
func (m ChannelMap) Index(ch Channel) int {
	if !ch.Valid() {
		return m.fallback()
	}
	return m.Base + m.Targets[ch]
}

// ChannelIndices returns the distinct indices of all articulation channels, ascending.
func (m ChannelMap) ChannelIndices() []int {
	seen := make(map[int]struct{}, ChannelCount)
	out := make([]int, 0, ChannelCount)
	for ch := Channel(0); ch < ChannelCount; ch++ {
		idx := m.Index(ch)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// RoleIndices returns the distinct indices of the spoken viseme roles (PP..ou), ascending.
func (m ChannelMap) RoleIndices() []int {
	seen := make(map[int]struct{}, viseme.Count)
	out := make([]int, 0, viseme.Count)
	for id := viseme.PP; id < viseme.Count; id++ {
		idx := m.VisemeIndex(id)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
