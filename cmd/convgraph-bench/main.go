// Command convgraph-bench drives repeated forward passes over a single
// convolution edge group, reporting elapsed time and an output checksum.
// It is the Go analogue of the original project's benchmark_sparse_conv
// driver: a synthetic input cube and filter cube run for a configurable
// number of trials. The -sx/-sy/-sz values become the conv edge group's
// "stride" option and enter the outsz given to graph.New; because that
// edge reads directly from an input node, its kernel runs undilated.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/openfluke/convgraph/config"
	"github.com/openfluke/convgraph/cube"
	"github.com/openfluke/convgraph/edge"
	"github.com/openfluke/convgraph/graph"
	"github.com/openfluke/convgraph/internal/gpuconv"
)

var (
	x  = flag.Int("x", 9, "input cube x dimension")
	y  = flag.Int("y", 9, "input cube y dimension")
	z  = flag.Int("z", 9, "input cube z dimension")
	fx = flag.Int("fx", 3, "filter x dimension")
	fy = flag.Int("fy", 3, "filter y dimension")
	fz = flag.Int("fz", 3, "filter z dimension")
	sx = flag.Int("sx", 2, "stride x")
	sy = flag.Int("sy", 2, "stride y")
	sz = flag.Int("sz", 2, "stride z")

	trials = flag.Int("trials", 10, "number of forward passes to time")
	useGPU = flag.Bool("gpu", false, "dispatch the convolution on WebGPU instead of CPU")
	specFile = flag.String("spec", "", "path to a JSON graph spec; replaces the synthetic graph (the input cube is still sized by -x/-y/-z)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var g *graph.Graph
	var err error
	var inputName, outputName string

	if *specFile != "" {
		var gpu edge.GPUConvolver
		if *useGPU {
			gpu = gpuconv.New()
		}
		g, err = config.BuildFile(*specFile, nil, gpu)
		if err != nil {
			return fmt.Errorf("convgraph-bench: %w", err)
		}
		if len(g.InputNames()) != 1 || len(g.OutputNames()) != 1 {
			return fmt.Errorf("convgraph-bench: -spec graph must have exactly one input and one output node group")
		}
		inputName, outputName = g.InputNames()[0], g.OutputNames()[0]
	} else {
		g, inputName, outputName, err = buildSyntheticGraph()
		if err != nil {
			return fmt.Errorf("convgraph-bench: %w", err)
		}
	}

	inVol := (*x) * (*y) * (*z)
	data := make([]float64, inVol)
	for i := range data {
		data[i] = float64(i)
	}
	in := cube.NewFromSlice(cube.Shape{*x, *y, *z}, data)

	// Warm-up pass, matching the original's pre-timing convolve_sparse call.
	out, err := g.Forward(map[string][]*cube.Cube{inputName: {in}})
	if err != nil {
		return fmt.Errorf("convgraph-bench: warm-up forward: %w", err)
	}

	start := time.Now()
	var last []*cube.Cube
	for i := 0; i < *trials; i++ {
		out, err = g.Forward(map[string][]*cube.Cube{inputName: {in}})
		if err != nil {
			return fmt.Errorf("convgraph-bench: forward: %w", err)
		}
		last = out[outputName]
	}
	elapsed := time.Since(start)

	var sum float64
	for _, c := range last {
		for _, v := range c.Data() {
			sum += v
		}
	}

	fmt.Fprintf(os.Stdout, "Elapsed: %s\n", elapsed)
	fmt.Fprintf(os.Stdout, "Sum: %v\n", sum)
	return nil
}

// buildSyntheticGraph assembles the one-input/one-conv-edge/one-output
// graph the -x/-y/-z flag family describes, with filter values seeded
// 0.001*i to match the original driver's synthetic weight fill.
func buildSyntheticGraph() (g *graph.Graph, inputName, outputName string, err error) {
	fvol := (*fx) * (*fy) * (*fz)
	filterData := make([]float64, fvol)
	for i := range filterData {
		filterData[i] = 0.001 * float64(i)
	}

	nodeOpts := []graph.Options{
		{"name": "in", "type": "input", "size": 1},
		{"name": "out", "type": "transfer", "size": 1, "function": "linear", "biases": encodeZeroBias()},
	}
	edgeOpts := []graph.Options{
		{
			"name": "conv1", "type": "conv", "input": "in", "output": "out",
			"size":    cube.Shape{*fx, *fy, *fz},
			"stride":  cube.Shape{*sx, *sy, *sz},
			"filters": encodeFloats(filterData),
		},
	}

	oshape := cube.Shape{
		*x - (*fx-1)**sx,
		*y - (*fy-1)**sy,
		*z - (*fz-1)**sz,
	}

	var gpu edge.GPUConvolver
	if *useGPU {
		gpu = gpuconv.New()
	}
	g, err = graph.New(nodeOpts, edgeOpts, oshape, nil, gpu)
	return g, "in", "out", err
}

func encodeZeroBias() []byte { return encodeFloats([]float64{0}) }

func encodeFloats(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], math.Float64bits(v))
	}
	return out
}
