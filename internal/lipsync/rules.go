package lipsync

import (
	"github.com/normanking/cortexlipsync/internal/rig"
	"github.com/normanking/cortexlipsync/internal/viseme"
)

// rule distributes part of one viseme's amplitude onto a channel.
type rule struct {
	channel  rig.Channel
	coeff    float32
	divisor  float32
	additive bool // read-then-add onto the running total instead of set
}

// rules is indexed by viseme id and evaluated in id order. Order matters: the
// non-additive entries set their channel, later additive entries add to it.
var rules = [viseme.Count][]rule{
	viseme.Sil: nil,
	viseme.PP:  {{rig.Explosive, 1.0, 1, false}},
	viseme.FF:  {{rig.DentalLip, 1.0, 1, false}},
	viseme.TH:  {{rig.DropLower, 0.5, 1, false}},
	viseme.DD: {
		{rig.DropLower, 0.2, 0.7, true},
		{rig.ShrugUpper, 0.5, 0.7, false},
	},
	viseme.KK: {
		{rig.DropLower, 0.5, 1.5, true},
		{rig.ShrugUpper, 1.0, 1.5, true},
	},
	viseme.CH: {
		{rig.DropLower, 0.7, 2.7, true},
		{rig.ShrugUpper, 1.0, 2.7, true},
		{rig.LipOpen, 1.0, 2.7, false},
	},
	viseme.SS: {
		{rig.DropLower, 0.5, 1.5, true},
		{rig.ShrugUpper, 1.0, 1.5, true},
	},
	viseme.NN: {
		{rig.DropLower, 0.5, 2.0, true},
		{rig.ShrugUpper, 1.0, 2.0, true},
	},
	viseme.RR: {{rig.ShrugUpper, 0.5, 0.9, true}},
	viseme.AA: {{rig.ShrugUpper, 1.0, 2.0, true}},
	viseme.E: {
		{rig.DropLower, 0.7, 1, true},
		{rig.ShrugUpper, 0.3, 1, true},
	},
	viseme.IH: {
		{rig.DropLower, 0.7, 1.2, true},
		{rig.ShrugUpper, 0.5, 1.2, true},
	},
	viseme.OH: {{rig.TightO, 1.2, 1, false}},
	viseme.OU: {{rig.TightO, 1.0, 1, true}},
}
