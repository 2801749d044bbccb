package depot

import (
	"fmt"
	"hash/fnv"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/mask"
)

// QueryID names one interned query plan within a world.
type QueryID uint32

type queryRule uint8

const (
	ruleAll queryRule = iota
	ruleAny
	ruleNone
)

const (
	cmdAddComponent uint8 = iota + 1
	cmdAddChangeFilter
)

// Query is the declarative description of desired and undesired components.
// Builder calls serialize into a command buffer; the first cursor over a world
// replays it into a compiled plan, interned by lookup hash so equal queries
// collapse to one QueryId.
type Query struct {
	commands serialBuffer
	count    int
	hash     uint64
}

func newQuery() *Query {
	return &Query{}
}

func (q *Query) addComponents(rule queryRule, write bool, comps []Component) *Query {
	for _, c := range comps {
		if c.IsZero() {
			panic(bark.AddTrace(fmt.Errorf("zero component in query rule")))
		}
		q.commands.putU8(cmdAddComponent)
		q.commands.putU8(uint8(c.Kind()))
		q.commands.putU8(uint8(rule))
		q.commands.putBool(write)
		q.commands.putU32(uint32(c.ID()))
		q.count++
	}
	q.hash = 0
	return q
}

// All requires every listed component, read-only.
func (q *Query) All(comps ...Component) *Query { return q.addComponents(ruleAll, false, comps) }

// AllMut requires every listed component and marks them written.
func (q *Query) AllMut(comps ...Component) *Query { return q.addComponents(ruleAll, true, comps) }

// Any requires at least one of the listed components.
func (q *Query) Any(comps ...Component) *Query { return q.addComponents(ruleAny, false, comps) }

// None rejects archetypes carrying any listed component.
func (q *Query) None(comps ...Component) *Query { return q.addComponents(ruleNone, false, comps) }

// Changed adds a change filter: chunks whose listed columns were not written
// since the query's previous run are skipped. Filtered components must appear
// in one of the query's rules.
func (q *Query) Changed(comps ...Component) *Query {
	for _, c := range comps {
		q.commands.putU8(cmdAddChangeFilter)
		q.commands.putU8(uint8(c.Kind()))
		q.commands.putU32(uint32(c.ID()))
	}
	q.hash = 0
	return q
}

// lookupHash digests the serialized command stream.
func (q *Query) lookupHash() uint64 {
	if q.hash == 0 {
		h := fnv.New64a()
		h.Write(q.commands.bytes())
		q.hash = h.Sum64()
		if q.hash == 0 {
			q.hash = 1
		}
	}
	return q.hash
}

// planKind is the compiled per-kind half of a plan.
type planKind struct {
	comps []Component
	rules []queryRule
	write []bool

	allMask, anyMask, noneMask          mask.Mask
	allMatcher, anyMatcher, noneMatcher uint64
	allCount                            int

	// allCursors tracks, per All component, how far into the world's
	// inverted index this plan has already matched.
	allCursors map[ComponentID]int
}

type queryPlan struct {
	id   QueryID
	hash uint64

	kinds   [kindCount]planKind
	filters [kindCount][]ComponentID

	matched    []ArchetypeID
	matchedSet map[ArchetypeID]struct{}

	worldVersion uint32
	arenaCursor  int
	hasAll       bool
	hasFilters   bool
}

// planFor returns the interned plan for q, compiling it on first sight.
func (w *World) planFor(q *Query) *queryPlan {
	hash := q.lookupHash()
	if plan, ok := w.plansByHash[hash]; ok {
		return plan
	}
	plan := compileQuery(q, hash)
	plan.id = w.nextQueryID
	w.nextQueryID++
	w.plansByHash[hash] = plan
	w.plans = append(w.plans, plan)
	return plan
}

// compileQuery replays the builder's command stream: duplicates are rejected,
// components are sorted by id with their rule and write bits permuted in
// lockstep, and the per-rule matcher hashes are folded.
func compileQuery(q *Query, hash uint64) *queryPlan {
	plan := &queryPlan{
		hash:       hash,
		matchedSet: make(map[ArchetypeID]struct{}),
	}
	rd := q.commands.reader()
	for rd.remaining() > 0 {
		switch op := rd.u8(); op {
		case cmdAddComponent:
			kind := ComponentKind(rd.u8())
			rule := queryRule(rd.u8())
			write := rd.bool()
			id := ComponentID(rd.u32())
			pk := &plan.kinds[kind]
			for _, existing := range pk.comps {
				if existing.ID() == id {
					panic(bark.AddTrace(fmt.Errorf("component %d appears twice in query", id)))
				}
			}
			pos := 0
			for pos < len(pk.comps) && pk.comps[pos].ID() < id {
				pos++
			}
			comp := globalCatalog.descriptor(id).comp
			pk.comps = append(pk.comps, Component{})
			copy(pk.comps[pos+1:], pk.comps[pos:])
			pk.comps[pos] = comp
			pk.rules = append(pk.rules, 0)
			copy(pk.rules[pos+1:], pk.rules[pos:])
			pk.rules[pos] = rule
			pk.write = append(pk.write, false)
			copy(pk.write[pos+1:], pk.write[pos:])
			pk.write[pos] = write
		case cmdAddChangeFilter:
			kind := ComponentKind(rd.u8())
			id := ComponentID(rd.u32())
			plan.filters[kind] = append(plan.filters[kind], id)
		default:
			panic(bark.AddTrace(fmt.Errorf("corrupt query command stream: opcode %d", op)))
		}
	}
	for kind := range plan.kinds {
		pk := &plan.kinds[kind]
		pk.allCursors = make(map[ComponentID]int)
		for i, c := range pk.comps {
			matcher := globalCatalog.descriptor(c.ID()).matcherHash
			switch pk.rules[i] {
			case ruleAll:
				pk.allMask.Mark(uint32(c.ID()))
				pk.allMatcher |= matcher
				pk.allCount++
				pk.allCursors[c.ID()] = 0
				plan.hasAll = true
			case ruleAny:
				pk.anyMask.Mark(uint32(c.ID()))
				pk.anyMatcher |= matcher
			case ruleNone:
				pk.noneMask.Mark(uint32(c.ID()))
				pk.noneMatcher |= matcher
			}
		}
	}
	for kind, filters := range plan.filters {
		for _, id := range filters {
			found := false
			for _, c := range plan.kinds[kind].comps {
				if c.ID() == id {
					found = true
					break
				}
			}
			if !found {
				panic(bark.AddTrace(fmt.Errorf("change filter component %d is not part of the query", id)))
			}
			plan.hasFilters = true
		}
	}
	return plan
}

// matches evaluates one kind's rules against an archetype: the single-bit
// matcher hashes reject fast, then the exact signature masks confirm.
func (pk *planKind) matches(a *Archetype, kind ComponentKind) bool {
	m := a.matcher[kind]
	if pk.noneMatcher != 0 && m&pk.noneMatcher != 0 {
		if a.sig[kind].ContainsAny(pk.noneMask) {
			return false
		}
	}
	if pk.anyMatcher != 0 {
		if m&pk.anyMatcher == 0 {
			return false
		}
		if !a.sig[kind].ContainsAny(pk.anyMask) {
			return false
		}
	}
	if pk.allCount > 0 {
		if m&pk.allMatcher != pk.allMatcher {
			return false
		}
		if !a.sig[kind].ContainsAll(pk.allMask) {
			return false
		}
	}
	return true
}

func (p *queryPlan) archetypeMatches(a *Archetype) bool {
	return p.kinds[KindGeneric].matches(a, KindGeneric) &&
		p.kinds[KindUnique].matches(a, KindUnique)
}

// refresh incrementally matches archetypes that appeared since the last use.
// Plans with All rules walk each All component's inverted index from its
// cursor; rule-free and exclusion-only plans walk the arena tail instead.
func (p *queryPlan) refresh(w *World) {
	if p.hasAll {
		for kind := ComponentKind(0); kind < kindCount; kind++ {
			pk := &p.kinds[kind]
			for i, c := range pk.comps {
				if pk.rules[i] != ruleAll {
					continue
				}
				list := w.byComponent[kind][c.ID()]
				for j := pk.allCursors[c.ID()]; j < len(list); j++ {
					p.consider(w, list[j])
				}
				pk.allCursors[c.ID()] = len(list)
			}
		}
		return
	}
	for ; p.arenaCursor < len(w.archetypes); p.arenaCursor++ {
		a := w.archetypes[p.arenaCursor]
		if a == nil {
			continue
		}
		p.consider(w, a.id)
	}
}

func (p *queryPlan) consider(w *World, id ArchetypeID) {
	if _, seen := p.matchedSet[id]; seen {
		return
	}
	a := w.archetypes[id]
	if a == nil {
		return
	}
	if p.archetypeMatches(a) {
		p.matched = append(p.matched, id)
		p.matchedSet[id] = struct{}{}
	}
}

// dropArchetype evicts a destroyed archetype from the plan's cache.
func (p *queryPlan) dropArchetype(id ArchetypeID) {
	if _, ok := p.matchedSet[id]; !ok {
		return
	}
	delete(p.matchedSet, id)
	for i, m := range p.matched {
		if m == id {
			p.matched = append(p.matched[:i], p.matched[i+1:]...)
			break
		}
	}
}

// componentListShrunk pulls an All-component cursor back when the inverted
// index lost an entry before it.
func (p *queryPlan) componentListShrunk(kind ComponentKind, id ComponentID, pos int) {
	pk := &p.kinds[kind]
	if cursor, ok := pk.allCursors[id]; ok && cursor > pos {
		pk.allCursors[id] = cursor - 1
	}
}

// chunkPassesFilter applies the plan's change filters: a chunk is visited when
// any filtered column was written after since.
func (p *queryPlan) chunkPassesFilter(ch *Chunk, since uint32) bool {
	if !p.hasFilters {
		return true
	}
	for kind := ComponentKind(0); kind < kindCount; kind++ {
		for _, id := range p.filters[kind] {
			col := ch.ColumnIndex(kind, id)
			if col < 0 {
				continue
			}
			if ch.Changed(kind, col, since) {
				return true
			}
		}
	}
	return false
}
