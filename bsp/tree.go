package bsp

type node struct {
	polygon   *DrawPolygon
	coplanars []*DrawPolygon
	front     *node
	back      *node
}

// Tree is a BSP tree over the polygons of one sorting context.
type Tree struct {
	root *node

	// Splits counts polygons split while building.
	Splits int
}

// NewTree builds a tree from list, taking ownership of its polygons: list
// is empty on return. The first polygon becomes the root plane, so callers
// pass polygons in paint order.
func NewTree(list *[]*DrawPolygon) *Tree {
	t := &Tree{}
	polys := make([]*DrawPolygon, 0, len(*list))
	for _, p := range *list {
		if p != nil && p.Drawable() {
			polys = append(polys, p)
		}
	}
	clear(*list)
	*list = (*list)[:0]
	t.root = t.build(polys)
	return t
}

func (t *Tree) build(polys []*DrawPolygon) *node {
	if len(polys) == 0 {
		return nil
	}
	n := &node{polygon: polys[0]}
	var front, back []*DrawPolygon
	for _, p := range polys[1:] {
		side, f, b := Split(n.polygon, p)
		switch side {
		case SideFront:
			front = append(front, p)
		case SideBack:
			back = append(back, p)
		case SideCoplanarFront, SideCoplanarBack:
			n.coplanars = append(n.coplanars, p)
		case SideSplit:
			t.Splits++
			if f != nil {
				front = append(front, f)
			}
			if b != nil {
				back = append(back, b)
			}
		}
	}
	n.front = t.build(front)
	n.back = t.build(back)
	return n
}

// Walk calls visit for every polygon fragment, farthest from the viewer
// first. Coplanar polygons are visited in the order they were given.
func (t *Tree) Walk(visit func(*DrawPolygon)) {
	walk(t.root, visit)
}

func walk(n *node, visit func(*DrawPolygon)) {
	if n == nil {
		return
	}
	far, near := n.front, n.back
	if n.polygon.facesViewer() {
		far, near = n.back, n.front
	}
	walk(far, visit)
	visit(n.polygon)
	for _, p := range n.coplanars {
		visit(p)
	}
	walk(near, visit)
}
