package rig

import (
	"fmt"

	"github.com/normanking/cortexlipsync/internal/viseme"
	"github.com/qmuntal/gltf"
)

// VisemeMorphNames are the per-viseme morph target names used by ReadyPlayerMe-style
// heads, indexed by viseme id.
var VisemeMorphNames = [viseme.Count]string{
	"viseme_sil",
	"viseme_PP",
	"viseme_FF",
	"viseme_TH",
	"viseme_DD",
	"viseme_kk",
	"viseme_CH",
	"viseme_SS",
	"viseme_nn",
	"viseme_RR",
	"viseme_aa",
	"viseme_E",
	"viseme_I",
	"viseme_O",
	"viseme_U",
}

// Layout is the result of resolving a channel map against a model file.
type Layout struct {
	Map ChannelMap
	// MorphTargets are the target names found on the mesh, in index order.
	MorphTargets []string
	// Missing lists channel and viseme names the mesh does not carry; their
	// indices were kept from the fallback map.
	Missing []string
}

// LayoutFromGLTF reads morph target names from the first mesh in a glTF/GLB file
// that carries any, and resolves channels and viseme roles by exact name. Indices
// are absolute, so the returned map has Base 0.
func LayoutFromGLTF(path string, fallback ChannelMap) (*Layout, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	var names []string
	for _, mesh := range doc.Meshes {
		if names = targetNames(mesh); len(names) > 0 {
			break
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no morph target names in %s", path)
	}

	return ResolveLayout(names, fallback), nil
}

// ResolveLayout maps channel and viseme morph names onto indices in names.
func ResolveLayout(names []string, fallback ChannelMap) *Layout {
	byName := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := byName[n]; !dup {
			byName[n] = i
		}
	}

	layout := &Layout{MorphTargets: names}
	m := ChannelMap{}

	for ch := Channel(0); ch < ChannelCount; ch++ {
		if idx, ok := byName[ChannelNames[ch]]; ok {
			m.Targets[ch] = idx
			continue
		}
		m.Targets[ch] = fallback.Index(ch)
		layout.Missing = append(layout.Missing, ChannelNames[ch])
	}

	for id := viseme.ID(0); id < viseme.Count; id++ {
		if idx, ok := byName[VisemeMorphNames[id]]; ok {
			m.Visemes[id] = idx
			continue
		}
		m.Visemes[id] = fallback.VisemeIndex(id)
		layout.Missing = append(layout.Missing, VisemeMorphNames[id])
	}

	layout.Map = m
	return layout
}

func targetNames(mesh *gltf.Mesh) []string {
	if mesh == nil {
		return nil
	}
	extras, ok := mesh.Extras.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := extras["targetNames"].([]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		s, _ := n.(string)
		names = append(names, s)
	}
	return names
}
