package pose

import "github.com/Faultbox/midgard-mmd/pkg/formats"

// evaluateMorphs samples every morph track and then distributes group morph
// weights onto their members. Members receive the group's own sampled
// weight times the member rate; nested groups recurse, and a group already
// on the recursion stack is skipped.
func (e *Evaluator) evaluateMorphs(frame float64, p *Pose) {
	for i := range e.model.Morphs {
		p.MorphWeights[i] = SampleMorph(e.morphTracks[i], frame)
	}
	if len(e.groups) == 0 {
		return
	}

	// Group weights are never written below, so each group distributes
	// exactly its own sampled weight.
	for _, g := range e.groups {
		if w := p.MorphWeights[g]; w != 0 {
			e.distribute(g, w, p)
		}
	}
}

func (e *Evaluator) distribute(group int, weight float32, p *Pose) {
	if p.groupStack[group] {
		return
	}
	p.groupStack[group] = true
	defer func() { p.groupStack[group] = false }()

	m := &e.model.Morphs[group]
	n := len(e.model.Morphs)
	for k, idx := range m.GroupIndices {
		member := int(idx)
		if member < 0 || member >= n {
			continue
		}
		w := weight * m.GroupRates[k]
		if e.model.Morphs[member].Kind == formats.MorphGroup {
			e.distribute(member, w, p)
			continue
		}
		p.MorphWeights[member] += w
	}
}
