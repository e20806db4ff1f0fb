package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

// Message tags of the ghost exchange. Every pair of ranks exchanges exactly
// one of each, in this order, in each direction.
const (
	TagRequest utils.MsgTag = iota
	TagNodeReply
	TagElemReply
)

func tagName(t utils.MsgTag) string {
	switch t {
	case TagRequest:
		return "request"
	case TagNodeReply:
		return "node reply"
	case TagElemReply:
		return "element reply"
	}
	return fmt.Sprintf("tag %d", t)
}

// PeerState tracks where the exchange with one peer stands. Receipt of the
// peer's request triggers both of our replies; the peer's replies to our
// request close the exchange.
type PeerState uint8

const (
	AwaitingRequest PeerState = iota
	SentReply
	AwaitingAck
	PeerDone
)

func (ps PeerState) String() string {
	return [...]string{"AwaitingRequest", "SentReply", "AwaitingAck", "Done"}[ps]
}

// GhostNode and GhostElem are the wire copies of mesh entities, addressed
// by global IDs.
type GhostNode struct {
	ID          int
	X           [3]float64
	ProcessorID int
}

type GhostElem struct {
	ID          int
	Type        types.ElementType
	Nodes       []int
	Subdomain   SubdomainID
	ProcessorID int
	Level       int
	Sides       map[int][]BoundaryID
}

type ghostMsg struct {
	Nodes    []int // Request: global IDs of partition boundary nodes
	NodeData []GhostNode
	ElemData []GhostElem
}

// RankView is the part of a distributed mesh one rank stores: its own
// elements plus whatever ghosts the exchange brought in. The embedded Mesh
// uses local IDs; GlobalElem and GlobalNode map them back.
type RankView struct {
	*Mesh
	GlobalElem     []int
	GlobalNode     []int
	elemLocal      map[int]int
	nodeLocal      map[int]int
	PartitionSides []types.ElemSideKey // Local sides facing another rank
	Peers          []PeerState
}

// Split cuts a partitioned mesh into one view per processor. Each view holds
// the active elements of the mesh dimension its rank owns, with their nodes
// and boundary info.
func Split(global *Mesh) (views []*RankView) {
	np := global.NumProcessors
	views = make([]*RankView, np)
	for r := 0; r < np; r++ {
		v := &RankView{
			Mesh:      NewMesh(global.Dim),
			elemLocal: make(map[int]int),
			nodeLocal: make(map[int]int),
		}
		v.SetRank(r)
		v.NumProcessors = np
		for bid, name := range global.BoundaryNames() {
			v.SetBoundaryName(bid, name)
		}
		for sid, name := range global.SubdomainNames() {
			v.SetSubdomainName(sid, name)
		}
		views[r] = v
	}
	for _, id := range global.ActiveElements() {
		e := &global.Elements[id]
		if e.Type.Dim() != global.Dim {
			continue
		}
		v := views[e.ProcessorID]
		ge := GhostElem{
			ID:          id,
			Type:        e.Type,
			Nodes:       e.Nodes,
			Subdomain:   e.Subdomain,
			ProcessorID: e.ProcessorID,
			Level:       e.Level,
			Sides:       sideBoundaries(global, id),
		}
		for _, n := range e.Nodes {
			node := &global.Nodes[n]
			v.addNode(GhostNode{ID: n, X: node.X, ProcessorID: node.ProcessorID})
		}
		v.addElem(ge)
	}
	for n := range global.Nodes {
		for _, bid := range global.NodeBoundaryIDs(n) {
			for _, v := range views {
				if ln, ok := v.nodeLocal[n]; ok {
					v.AddNodeBoundary(ln, bid)
				}
			}
		}
	}
	for _, v := range views {
		v.FindNeighbors()
	}
	for _, id := range global.ActiveElements() {
		e := &global.Elements[id]
		if e.Type.Dim() != global.Dim {
			continue
		}
		for s := 0; s < e.Type.NumSides(); s++ {
			nbr := global.Neighbor(id, s)
			if nbr != InvalidID && global.Elements[nbr].ProcessorID != e.ProcessorID {
				v := views[e.ProcessorID]
				v.PartitionSides = append(v.PartitionSides, types.NewElemSideKey(v.elemLocal[id], s))
			}
		}
	}
	return
}

func sideBoundaries(m *Mesh, id int) (sides map[int][]BoundaryID) {
	e := &m.Elements[id]
	for s := 0; s < e.Type.NumSides(); s++ {
		if bids := m.SideBoundaryIDs(id, s); len(bids) != 0 {
			if sides == nil {
				sides = make(map[int][]BoundaryID)
			}
			sides[s] = bids
		}
	}
	return
}

func (v *RankView) object() string { return fmt.Sprintf("rank %d", v.Rank()) }

// LocalElem returns the local ID of a global element, or InvalidID.
func (v *RankView) LocalElem(global int) int {
	if l, ok := v.elemLocal[global]; ok {
		return l
	}
	return InvalidID
}

func (v *RankView) LocalNode(global int) int {
	if l, ok := v.nodeLocal[global]; ok {
		return l
	}
	return InvalidID
}

// NumGhosts counts the elements this rank stores but does not own.
func (v *RankView) NumGhosts() (n int) {
	for _, id := range v.ActiveElements() {
		if !v.IsLocal(id) {
			n++
		}
	}
	return
}

// addNode inserts a node copy, or checks an existing copy against it.
func (v *RankView) addNode(gn GhostNode) {
	if l, ok := v.nodeLocal[gn.ID]; ok {
		have := &v.Nodes[l]
		if have.X != gn.X || have.ProcessorID != gn.ProcessorID {
			utils.CommErrorf(v.object(), "node %d differs from the received copy: have %v on rank %d, received %v on rank %d",
				gn.ID, have.X, have.ProcessorID, gn.X, gn.ProcessorID)
		}
		return
	}
	l := v.AddNode(gn.X[:]...)
	v.Nodes[l].ProcessorID = gn.ProcessorID
	v.nodeLocal[gn.ID] = l
	v.GlobalNode = append(v.GlobalNode, gn.ID)
}

// addElem inserts an element copy, or checks an existing copy against it.
// All of its nodes must already be present.
func (v *RankView) addElem(ge GhostElem) {
	nodes := make([]int, len(ge.Nodes))
	for i, n := range ge.Nodes {
		l, ok := v.nodeLocal[n]
		if !ok {
			utils.CommErrorf(v.object(), "element %d arrived before its node %d", ge.ID, n)
		}
		nodes[i] = l
	}
	if l, ok := v.elemLocal[ge.ID]; ok {
		have := &v.Elements[l]
		same := have.Type == ge.Type && have.Subdomain == ge.Subdomain &&
			have.ProcessorID == ge.ProcessorID && have.Level == ge.Level &&
			len(have.Nodes) == len(nodes)
		for i := 0; same && i < len(nodes); i++ {
			same = have.Nodes[i] == nodes[i]
		}
		if !same {
			utils.CommErrorf(v.object(), "element %d differs from the copy received from rank %d", ge.ID, ge.ProcessorID)
		}
		return
	}
	l := v.AddElement(ge.Type, nodes, ge.Subdomain)
	e := &v.Elements[l]
	e.ProcessorID = ge.ProcessorID
	e.Level = ge.Level
	for s, bids := range ge.Sides {
		for _, bid := range bids {
			v.AddSideBoundary(l, s, bid)
		}
	}
	v.elemLocal[ge.ID] = l
	v.GlobalElem = append(v.GlobalElem, ge.ID)
}

// partitionNodes lists the global IDs of nodes on sides facing other ranks.
func (v *RankView) partitionNodes() (nodes []int) {
	seen := make(map[int]bool)
	for _, key := range v.PartitionSides {
		for _, n := range v.SideNodes(key.Elem(), key.Side()) {
			if g := v.GlobalNode[n]; !seen[g] {
				seen[g] = true
				nodes = append(nodes, g)
			}
		}
	}
	sort.Ints(nodes)
	return
}

// gather collects the owned elements touching any of the requested global
// nodes, together with all of their nodes.
func (v *RankView) gather(want []int) (nodes []GhostNode, elems []GhostElem) {
	var (
		n2e       = make(map[int][]int)
		seenElem  = make(map[int]bool)
		seenNode  = make(map[int]bool)
		elemOrder []int
	)
	for _, id := range v.ActiveLocalElements() {
		for _, n := range v.Elements[id].Nodes {
			n2e[n] = append(n2e[n], id)
		}
	}
	for _, g := range want {
		l, ok := v.nodeLocal[g]
		if !ok {
			continue
		}
		for _, id := range n2e[l] {
			if !seenElem[id] {
				seenElem[id] = true
				elemOrder = append(elemOrder, id)
			}
		}
	}
	sort.Ints(elemOrder)
	for _, id := range elemOrder {
		e := &v.Elements[id]
		ge := GhostElem{
			ID:          v.GlobalElem[id],
			Type:        e.Type,
			Nodes:       make([]int, len(e.Nodes)),
			Subdomain:   e.Subdomain,
			ProcessorID: e.ProcessorID,
			Level:       e.Level,
			Sides:       sideBoundaries(v.Mesh, id),
		}
		for i, n := range e.Nodes {
			ge.Nodes[i] = v.GlobalNode[n]
			if !seenNode[n] {
				seenNode[n] = true
				nodes = append(nodes, GhostNode{ID: v.GlobalNode[n], X: v.Nodes[n].X,
					ProcessorID: v.Nodes[n].ProcessorID})
			}
		}
		elems = append(elems, ge)
	}
	return
}

// ExchangeGhosts runs the ghost exchange between all views concurrently,
// one goroutine per rank, and rebuilds each view's neighbor table. It can
// be repeated; entities already present are checked against the copies
// received.
func ExchangeGhosts(views []*RankView, metrics *utils.Metrics) {
	np := len(views)
	mb := utils.NewMailBox[ghostMsg](np, 3)
	if metrics != nil {
		mb.OnSend = func(e utils.Envelope[ghostMsg]) {
			metrics.GhostMessages.WithLabelValues(tagName(e.Tag)).Inc()
		}
	}
	pm := utils.NewPartitionMap(np, np)
	pm.ParallelFor(func(_, kMin, kMax int) {
		for r := kMin; r < kMax; r++ {
			views[r].exchange(mb)
		}
	})
	utils.Logf("ghost exchange finished after %d messages", mb.Sent())
}

func (v *RankView) exchange(mb *utils.MailBox[ghostMsg]) {
	defer func() {
		if r := recover(); r != nil {
			mb.Abort()
			panic(r)
		}
	}()
	var (
		rank      = v.Rank()
		np        = mb.NP
		remaining = np - 1
		want      = v.partitionNodes()
	)
	v.Peers = make([]PeerState, np)
	v.Peers[rank] = PeerDone
	for p := 0; p < np; p++ {
		if p != rank {
			mb.PostMessage(rank, p, TagRequest, ghostMsg{Nodes: want})
		}
	}
	for remaining > 0 {
		env := mb.ReceiveMessage(rank)
		st := &v.Peers[env.From]
		switch {
		case *st == AwaitingRequest && env.Tag == TagRequest:
			nodes, elems := v.gather(env.Payload.Nodes)
			mb.PostMessage(rank, env.From, TagNodeReply, ghostMsg{NodeData: nodes})
			mb.PostMessage(rank, env.From, TagElemReply, ghostMsg{ElemData: elems})
			*st = SentReply
		case *st == SentReply && env.Tag == TagNodeReply:
			for _, gn := range env.Payload.NodeData {
				v.addNode(gn)
			}
			*st = AwaitingAck
		case *st == AwaitingAck && env.Tag == TagElemReply:
			for _, ge := range env.Payload.ElemData {
				v.addElem(ge)
			}
			*st = PeerDone
			remaining--
		default:
			utils.CommErrorf(v.object(), "%s from rank %d arrived while in state %s",
				tagName(env.Tag), env.From, *st)
		}
	}
	v.FindNeighbors()
}
