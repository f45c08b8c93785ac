// Package graph assembles NodeGroups and Edges into a runnable dataflow
// graph (§4.6, §6): construction from option bags, the two geometry
// fixpoint passes, and the forward/backward/serialize runtime surface.
package graph

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/openfluke/convgraph/cube"
	"github.com/openfluke/convgraph/edge"
	"github.com/openfluke/convgraph/initializer"
	"github.com/openfluke/convgraph/node"
	"github.com/openfluke/convgraph/param"
	"github.com/openfluke/convgraph/transfer"
)

const (
	defaultEta         = 0.1
	defaultMomentum    = 0.0
	defaultWeightDecay = 0.0
)

// edgeGroup is the graph's own bookkeeping record for one edge-group
// option bag: its endpoints, its window/stride, and (after step 4) the
// concrete Filter store for a convolution edge-group.
type edgeGroup struct {
	name               string
	kind               string
	inputName          string
	outputName         string
	window, stride     cube.Shape
	inStride, inFsize  cube.Shape
	filters            []*param.Filter // len n*m, row-major (src, dst); conv only
}

// Graph is a constructed, runnable dataflow graph. The zero value is not
// usable; build one with New.
type Graph struct {
	nodes    map[string]node.NodeGroup
	nodeType map[string]string
	nodeOpts map[string]Options

	nodeOrder []string
	edgeOrder []string

	inputNames  []string
	outputNames []string

	edges    map[string]*edgeGroup
	edgeOpts map[string]Options

	filters []*param.Filter
	biases  []*param.Bias
}

// New builds a Graph from ordered node and edge option bags following the
// four-step recipe of §4.6. rng seeds any filter/bias initializer draws
// that aren't satisfied by an explicit byte string; pass nil to use a
// deterministic default source, matching the teacher's preference for
// reproducible test fixtures over wall-clock seeding. gpu, if non-nil, is
// shared by every convolution edge's forward dispatch (§11); pass nil to
// run entirely on CPU.
func New(nodeOpts, edgeOpts []Options, outsz cube.Shape, rng *rand.Rand, gpu edge.GPUConvolver) (*Graph, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	g := &Graph{
		nodes:    make(map[string]node.NodeGroup),
		nodeType: make(map[string]string),
		nodeOpts: make(map[string]Options),
		edges:    make(map[string]*edgeGroup),
		edgeOpts: make(map[string]Options),
	}

	if err := g.createNodes(nodeOpts, rng); err != nil {
		return nil, err
	}
	if err := g.createEdgeGroups(edgeOpts); err != nil {
		return nil, err
	}
	if err := g.runStridePass(); err != nil {
		return nil, err
	}
	if err := g.runFOVPass(outsz); err != nil {
		return nil, err
	}
	if err := g.instantiateEdges(rng, gpu); err != nil {
		return nil, err
	}
	return g, nil
}

// createNodes is step 1: create every node group, type-dispatched.
func (g *Graph) createNodes(opts []Options, rng *rand.Rand) error {
	for _, no := range opts {
		name, err := no.requireString("node", "name")
		if err != nil {
			return err
		}
		if _, dup := g.nodes[name]; dup {
			return &ConfigError{Where: "node " + name, Msg: "duplicate node name"}
		}
		kind, err := no.requireString("node "+name, "type")
		if err != nil {
			return err
		}
		size, err := no.requireInt("node "+name, "size")
		if err != nil {
			return err
		}
		if size <= 0 {
			return &ConfigError{Where: "node " + name, Msg: "size must be positive"}
		}

		var ng node.NodeGroup
		switch kind {
		case "input":
			ng = node.NewInputNode(name, size)
		case "sum":
			ng = node.NewSummingNode(name, size)
		case "transfer":
			ng, err = g.newTransferNode(name, size, no, rng)
			if err != nil {
				return err
			}
		default:
			return &ConfigError{Where: "node " + name, Msg: fmt.Sprintf("unknown node type %q", kind)}
		}

		g.nodes[name] = ng
		g.nodeType[name] = kind
		g.nodeOpts[name] = no.Clone()
		g.nodeOrder = append(g.nodeOrder, name)
	}
	return nil
}

func (g *Graph) newTransferNode(name string, size int, no Options, rng *rand.Rand) (*node.TransferNode, error) {
	fnName, err := no.requireString("node "+name, "function")
	if err != nil {
		return nil, err
	}
	fn, err := transfer.Get(fnName)
	if err != nil {
		return nil, &ConfigError{Where: "node " + name, Msg: err.Error()}
	}

	values, err := fillFloats("node "+name, no, "biases", size, rng)
	if err != nil {
		return nil, err
	}
	eta := no.optionalFloat("eta", defaultEta)
	mu := no.optionalFloat("momentum", defaultMomentum)
	lambda := no.optionalFloat("weight_decay", defaultWeightDecay)

	biases := make([]*param.Bias, size)
	for i := range biases {
		biases[i] = param.NewBias(values[i], eta, mu, lambda)
	}
	tn := node.NewTransferNode(name, fn, biases)
	g.biases = append(g.biases, biases...)
	return tn, nil
}

// fillFloats returns n values for a node/edge option bag: decoded from
// the byte-string option named key if present, else drawn from the named
// "init" initializer. Missing both is a ConfigError.
func fillFloats(where string, o Options, key string, n int, rng *rand.Rand) ([]float64, error) {
	if raw, ok := o.bytes(key); ok {
		return decodeFloats64LE(where, raw, n)
	}
	initName, err := o.requireString(where, "init")
	if err != nil {
		return nil, &ConfigError{Where: where, Msg: fmt.Sprintf("neither %q nor \"init\" was supplied", key)}
	}
	fn, err := initializer.Get(initName)
	if err != nil {
		return nil, &ConfigError{Where: where, Msg: err.Error()}
	}
	dst := make([]float64, n)
	fn(dst, rng)
	return dst, nil
}

// createEdgeGroups is step 2: wire src/dst references and record window
// and stride, without yet instantiating any concrete kernel.
func (g *Graph) createEdgeGroups(opts []Options) error {
	for _, eo := range opts {
		name, err := eo.requireString("edge", "name")
		if err != nil {
			return err
		}
		if _, dup := g.edges[name]; dup {
			return &ConfigError{Where: "edge " + name, Msg: "duplicate edge name"}
		}
		kind, err := eo.requireString("edge "+name, "type")
		if err != nil {
			return err
		}
		inName, err := eo.requireString("edge "+name, "input")
		if err != nil {
			return err
		}
		outName, err := eo.requireString("edge "+name, "output")
		if err != nil {
			return err
		}
		if _, ok := g.nodes[inName]; !ok {
			return &ConfigError{Where: "edge " + name, Msg: fmt.Sprintf("input node %q does not exist", inName)}
		}
		if _, ok := g.nodes[outName]; !ok {
			return &ConfigError{Where: "edge " + name, Msg: fmt.Sprintf("output node %q does not exist", outName)}
		}

		eg := &edgeGroup{name: name, kind: kind, inputName: inName, outputName: outName}
		switch kind {
		case "conv":
			eg.window, err = eo.requireShape("edge "+name, "size")
			if err != nil {
				return err
			}
			eg.stride = eo.optionalShape("stride", cube.One)
		case "max_filter":
			eg.window, err = eo.requireShape("edge "+name, "size")
			if err != nil {
				return err
			}
			eg.stride, err = eo.requireShape("edge "+name, "stride")
			if err != nil {
				return err
			}
		case "dummy":
			eg.window, eg.stride = cube.One, cube.One
		default:
			return &ConfigError{Where: "edge " + name, Msg: fmt.Sprintf("unknown edge type %q", kind)}
		}

		g.edges[name] = eg
		g.edgeOpts[name] = eo.Clone()
		g.edgeOrder = append(g.edgeOrder, name)
	}

	g.inputNames, g.outputNames = g.deriveEndpoints()
	return nil
}

// deriveEndpoints computes the inputs set (nodes flagged "input" at
// creation) and the outputs set (nodes that are never an edge-group's
// source, §3's "derived after all edges are added").
func (g *Graph) deriveEndpoints() (inputs, outputs []string) {
	hasOutEdge := make(map[string]bool)
	for _, eg := range g.edges {
		hasOutEdge[eg.inputName] = true
	}
	for _, name := range g.nodeOrder {
		if g.nodeType[name] == "input" {
			inputs = append(inputs, name)
		}
		if !hasOutEdge[name] {
			outputs = append(outputs, name)
		}
	}
	return inputs, outputs
}

// runStridePass is the §4.6 stride pass: a forward breadth-first
// propagation from every input node with stride (1,1,1), multiplying by
// each edge-group's stride component-wise.
func (g *Graph) runStridePass() error {
	stride := make(map[string]cube.Shape)
	visited := make(map[string]bool)
	var queue []string

	for _, name := range g.inputNames {
		stride[name] = cube.One
		visited[name] = true
		queue = append(queue, name)
	}

	outEdgesBySrc := make(map[string][]*edgeGroup)
	for _, name := range g.edgeOrder {
		eg := g.edges[name]
		outEdgesBySrc[eg.inputName] = append(outEdgesBySrc[eg.inputName], eg)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curStride := stride[cur]
		for _, eg := range outEdgesBySrc[cur] {
			candidate := curStride.Mul(eg.stride)
			if visited[eg.outputName] {
				if stride[eg.outputName] != candidate {
					return &GraphInconsistent{Node: eg.outputName, Msg: fmt.Sprintf("stride %v conflicts with previously computed %v", candidate, stride[eg.outputName])}
				}
				continue
			}
			stride[eg.outputName] = candidate
			visited[eg.outputName] = true
			queue = append(queue, eg.outputName)
		}
	}

	for name, ng := range g.nodes {
		if !visited[name] {
			return &GraphInconsistent{Node: name, Msg: "not reachable from any input node during the stride pass"}
		}
		geom := ng.Geometry()
		geom.Stride = stride[name]
		ng.SetGeometry(geom)
	}
	return nil
}

// runFOVPass is the §4.6 FOV pass: a backward breadth-first propagation
// from every output node, seeded with fov=(1,1,1) and fsize=outsz.
func (g *Graph) runFOVPass(outsz cube.Shape) error {
	fov := make(map[string]cube.Shape)
	fsize := make(map[string]cube.Shape)
	visited := make(map[string]bool)
	var queue []string

	for _, name := range g.outputNames {
		fov[name] = cube.One
		fsize[name] = outsz
		visited[name] = true
		queue = append(queue, name)
	}

	inEdgesByDst := make(map[string][]*edgeGroup)
	for _, name := range g.edgeOrder {
		eg := g.edges[name]
		inEdgesByDst[eg.outputName] = append(inEdgesByDst[eg.outputName], eg)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curFov, curFsize := fov[cur], fsize[cur]
		for _, eg := range inEdgesByDst[cur] {
			upstreamStride := g.nodes[eg.inputName].Geometry().Stride
			upstreamFov := curFov.Sub(cube.One).Mul(eg.stride).Add(eg.window)
			upstreamFsize := eg.window.Sub(cube.One).Mul(upstreamStride).Add(curFsize)
			eg.inStride = upstreamStride
			eg.inFsize = curFsize

			if visited[eg.inputName] {
				if fov[eg.inputName] != upstreamFov || fsize[eg.inputName] != upstreamFsize {
					return &GraphInconsistent{Node: eg.inputName, Msg: "fov/fsize conflict across converging edge groups"}
				}
				continue
			}
			fov[eg.inputName] = upstreamFov
			fsize[eg.inputName] = upstreamFsize
			visited[eg.inputName] = true
			queue = append(queue, eg.inputName)
		}
	}

	for name, ng := range g.nodes {
		if !visited[name] {
			return &GraphInconsistent{Node: name, Msg: "not reachable from any output node during the FOV pass"}
		}
		geom := ng.Geometry()
		geom.FOV = fov[name]
		geom.FSize = fsize[name]
		ng.SetGeometry(geom)
	}
	return nil
}

// instantiateEdges is step 4: build the concrete Edge kernels now that
// in_stride is known, and wire each into its endpoints' Port lists.
func (g *Graph) instantiateEdges(rng *rand.Rand, gpu edge.GPUConvolver) error {
	for _, name := range g.edgeOrder {
		eg := g.edges[name]
		src := g.nodes[eg.inputName]
		dst := g.nodes[eg.outputName]
		n, m := src.Size(), dst.Size()

		switch eg.kind {
		case "dummy":
			if n != m {
				return &ConfigError{Where: "edge " + name, Msg: "dummy edge requires equal channel counts"}
			}
			for i := 0; i < n; i++ {
				wire(src, i, edge.NewIdentityEdge(), dst, i)
			}

		case "max_filter":
			if n != m {
				return &ConfigError{Where: "edge " + name, Msg: "max_filter edge requires equal channel counts"}
			}
			for i := 0; i < n; i++ {
				wire(src, i, edge.NewPoolEdge(eg.window, eg.inStride), dst, i)
			}

		case "conv":
			if err := g.instantiateConv(eg, name, src, dst, n, m, rng, gpu); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) instantiateConv(eg *edgeGroup, name string, src, dst node.NodeGroup, n, m int, rng *rand.Rand, gpu edge.GPUConvolver) error {
	opts := g.edgeOpts[name]
	vol := eg.window.Vol()
	total := n * m

	var flat []float64
	if raw, ok := opts.bytes("filters"); ok {
		var err error
		flat, err = decodeFloats64LE("edge "+name, raw, total*vol)
		if err != nil {
			return err
		}
	} else {
		initName, err := opts.requireString("edge "+name, "init")
		if err != nil {
			return &ConfigError{Where: "edge " + name, Msg: "neither \"filters\" nor \"init\" was supplied"}
		}
		fn, err := initializer.Get(initName)
		if err != nil {
			return &ConfigError{Where: "edge " + name, Msg: err.Error()}
		}
		flat = make([]float64, total*vol)
		fn(flat, rng)
	}

	eta := opts.optionalFloat("eta", defaultEta)
	mu := opts.optionalFloat("momentum", defaultMomentum)
	lambda := opts.optionalFloat("weight_decay", defaultWeightDecay)

	eg.filters = make([]*param.Filter, 0, total)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			idx := i*m + j
			data := make([]float64, vol)
			copy(data, flat[idx*vol:(idx+1)*vol])
			w := cube.NewFromSlice(eg.window, data)
			f := param.NewFilter(w, eta, mu, lambda)
			eg.filters = append(eg.filters, f)
			g.filters = append(g.filters, f)
			wire(src, i, edge.NewConvEdge(f, eg.inStride, gpu), dst, j)
		}
	}
	return nil
}

func wire(src node.NodeGroup, srcCh int, k node.Edge, dst node.NodeGroup, dstCh int) {
	src.AttachOut(srcCh, &node.Port{Kernel: k, Peer: dst, Channel: dstCh})
	dst.AttachIn(dstCh, &node.Port{Kernel: k, Peer: src, Channel: srcCh})
}

// Forward runs one forward pass. inputs must have exactly one entry per
// input node group, each a slice of length equal to that node's size
// (§6). The returned map has one entry per output node group, holding
// its current post-activation feature cubes; callers must not retain
// these references across a subsequent Forward or Backward call.
func (g *Graph) Forward(inputs map[string][]*cube.Cube) (map[string][]*cube.Cube, error) {
	if err := g.checkPortMap(inputs, g.inputNames, "forward"); err != nil {
		return nil, err
	}
	for _, name := range g.inputNames {
		list := inputs[name]
		ng := g.nodes[name]
		for ch, c := range list {
			if err := ng.Forward(ch, c); err != nil {
				return nil, err
			}
		}
	}

	out := make(map[string][]*cube.Cube, len(g.outputNames))
	for _, name := range g.outputNames {
		ng := g.nodes[name]
		features := make([]*cube.Cube, ng.Size())
		for ch := range features {
			features[ch] = ng.Feature(ch)
		}
		out[name] = features
	}
	return out, nil
}

// Backward runs one backward pass over the output nodes' gradients,
// mutating every reachable Filter and Bias in place. The returned map
// carries no data: one empty slice per input node name (§6).
func (g *Graph) Backward(outputGrads map[string][]*cube.Cube) (map[string][]*cube.Cube, error) {
	if err := g.checkPortMap(outputGrads, g.outputNames, "backward"); err != nil {
		return nil, err
	}
	for _, name := range g.outputNames {
		list := outputGrads[name]
		ng := g.nodes[name]
		for ch, gr := range list {
			if err := ng.Backward(ch, gr); err != nil {
				return nil, err
			}
		}
	}

	result := make(map[string][]*cube.Cube, len(g.inputNames))
	for _, name := range g.inputNames {
		result[name] = []*cube.Cube{}
	}
	return result, nil
}

func (g *Graph) checkPortMap(m map[string][]*cube.Cube, names []string, op string) error {
	if len(m) != len(names) {
		return &node.ProtocolViolation{Node: op, Channel: -1, Reason: fmt.Sprintf("expected %d node(s), got %d", len(names), len(m))}
	}
	for _, name := range names {
		list, ok := m[name]
		if !ok {
			return &node.ProtocolViolation{Node: name, Channel: -1, Reason: fmt.Sprintf("%s call missing entry for node %q", op, name)}
		}
		if want := g.nodes[name].Size(); len(list) != want {
			return &node.ProtocolViolation{Node: name, Channel: -1, Reason: fmt.Sprintf("%s call supplied %d cube(s), want %d", op, len(list), want)}
		}
	}
	return nil
}

// SetEta, SetMomentum, and SetWeightDecay broadcast a hyperparameter to
// every Filter and Bias in the graph (§6).
func (g *Graph) SetEta(eta float64) {
	for _, f := range g.filters {
		f.SetEta(eta)
	}
	for _, b := range g.biases {
		b.SetEta(eta)
	}
}

func (g *Graph) SetMomentum(mu float64) {
	for _, f := range g.filters {
		f.SetMomentum(mu)
	}
	for _, b := range g.biases {
		b.SetMomentum(mu)
	}
}

func (g *Graph) SetWeightDecay(lambda float64) {
	for _, f := range g.filters {
		f.SetWeightDecay(lambda)
	}
	for _, b := range g.biases {
		b.SetWeightDecay(lambda)
	}
}

// FOV returns the field of view computed at init for the
// lexicographically-first input node group, matching the original's
// std::map<string, nnodes*> input_nodes_ (whose begin() is sorted by
// name, not construction order).
func (g *Graph) FOV() cube.Shape {
	if len(g.inputNames) == 0 {
		return cube.Shape{}
	}
	first := g.inputNames[0]
	for _, name := range g.inputNames[1:] {
		if name < first {
			first = name
		}
	}
	return g.nodes[first].Geometry().FOV
}

// InputNames and OutputNames expose the derived endpoint sets in
// construction order, for callers building a Forward/Backward call.
func (g *Graph) InputNames() []string  { return append([]string(nil), g.inputNames...) }
func (g *Graph) OutputNames() []string { return append([]string(nil), g.outputNames...) }

// Serialize returns one option bag per node and per edge group, in
// construction order, with every "biases"/"filters" byte string
// overwritten from current parameter state (§6).
func (g *Graph) Serialize() ([]Options, []Options) {
	nodeOpts := make([]Options, 0, len(g.nodeOrder))
	for _, name := range g.nodeOrder {
		opts := g.nodeOpts[name].Clone()
		if g.nodeType[name] == "transfer" {
			tn := g.nodes[name].(*node.TransferNode)
			values := make([]float64, len(tn.Biases))
			for i, b := range tn.Biases {
				values[i] = b.B
			}
			opts["biases"] = encodeFloats64LE(values)
		}
		nodeOpts = append(nodeOpts, opts)
	}

	edgeOpts := make([]Options, 0, len(g.edgeOrder))
	for _, name := range g.edgeOrder {
		eg := g.edges[name]
		opts := g.edgeOpts[name].Clone()
		if eg.kind == "conv" {
			vol := eg.window.Vol()
			flat := make([]float64, 0, len(eg.filters)*vol)
			for _, f := range eg.filters {
				flat = append(flat, f.W.Data()...)
			}
			opts["filters"] = encodeFloats64LE(flat)
		}
		edgeOpts = append(edgeOpts, opts)
	}
	return nodeOpts, edgeOpts
}

// decodeFloats64LE parses a little-endian float64 byte string into
// exactly want values (§6's "persisted parameter layout").
func decodeFloats64LE(where string, raw []byte, want int) ([]float64, error) {
	if len(raw) != want*8 {
		return nil, &ConfigError{Where: where, Msg: fmt.Sprintf("byte string has %d bytes, want %d for %d float64 values", len(raw), want*8, want)}
	}
	out := make([]float64, want)
	for i := range out {
		bits := binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
		out[i] = math.Float64frombits(bits)
	}
	return out, nil
}

func encodeFloats64LE(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], math.Float64bits(v))
	}
	return out
}
