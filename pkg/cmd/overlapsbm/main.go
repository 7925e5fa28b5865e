package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/overlap-blockmodel/pkg/blockmodel"
	"github.com/gilchrisn/overlap-blockmodel/pkg/halfedge"
	"github.com/gilchrisn/overlap-blockmodel/pkg/parser"
	"github.com/gilchrisn/overlap-blockmodel/pkg/utils"
	"github.com/gilchrisn/overlap-blockmodel/pkg/validation"
)

// Report is the evaluation of one partition.
type Report struct {
	Source      string                   `json:"source" yaml:"source"`
	Chain       string                   `json:"chain" yaml:"chain"`
	Nodes       int                      `json:"nodes" yaml:"nodes"`
	Edges       int                      `json:"edges" yaml:"edges"`
	Blocks      int                      `json:"blocks" yaml:"blocks"`
	Occupied    int                      `json:"occupied_blocks" yaml:"occupied_blocks"`
	Sparse      float64                  `json:"sparse_entropy" yaml:"sparse_entropy"`
	PartitionDL float64                  `json:"partition_dl" yaml:"partition_dl"`
	DegreeDL    float64                  `json:"degree_dl" yaml:"degree_dl"`
	EdgesDL     float64                  `json:"edges_dl" yaml:"edges_dl"`
	Total       float64                  `json:"total" yaml:"total"`
	Overlap     []blockmodel.NodeOverlap `json:"overlap,omitempty" yaml:"overlap,omitempty"`
	Split       []int                    `json:"overlap_split" yaml:"overlap_split"`
	NMI         float64                  `json:"nmi_to_first" yaml:"nmi_to_first"`
}

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	cfg := blockmodel.NewConfig()
	if path := os.Getenv("OVERLAPSBM_CONFIG"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			log.Fatalf("Failed to load config %s: %v", path, err)
		}
	}
	// reports go to stdout
	logger := cfg.CreateLogger().Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	switch strings.ToLower(os.Args[1]) {
	case "evaluate", "eval", "e":
		reports, err := evaluate(context.Background(), cfg, logger, os.Args[2], os.Args[3:])
		if err != nil {
			log.Fatalf("Evaluation failed: %v", err)
		}
		if err := writeReports(os.Stdout, cfg.OutputFormat(), reports); err != nil {
			log.Fatalf("Failed to write reports: %v", err)
		}
	case "replay", "r":
		if len(os.Args) != 4 && len(os.Args) != 5 {
			printUsage()
			os.Exit(1)
		}
		trackFile := ""
		if len(os.Args) == 5 {
			trackFile = os.Args[4]
		} else if cfg.EnableMoveTracking() {
			trackFile = cfg.TrackingOutputFile()
		}
		if err := replay(cfg, logger, os.Args[2], os.Args[3], trackFile); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Overlapping block model tools\n\n")
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s evaluate <edgelist> [half_edge_labels...]\n", os.Args[0])
	fmt.Printf("  %s replay <edgelist> <moves|random:N> [track.jsonl]\n\n", os.Args[0])
	fmt.Printf("Edge list lines are 'u v' or 'u v r s' (blocks of the u and v half-edges).\n")
	fmt.Printf("Set OVERLAPSBM_CONFIG to a YAML/JSON/TOML file to override defaults.\n")
}

// input is a loaded graph with its initial partition and side labels.
type input struct {
	graph     *halfedge.Graph
	labels    []int
	barriers  []int
	groups    []int
	numBlocks int
}

func loadInput(cfg *blockmodel.Config, logger zerolog.Logger, graphFile string) (*input, error) {
	el, err := parser.ReadEdgeListFile(graphFile, cfg.Directed())
	if err != nil {
		return nil, err
	}
	g, err := el.Graph()
	if err != nil {
		return nil, err
	}

	in := &input{graph: g}
	if b, ok := el.HalfEdgeLabels(); ok {
		in.labels = b
	} else {
		rng := rand.New(rand.NewSource(uint64(cfg.RandomSeed())))
		in.labels = make([]int, g.NumHalfEdges())
		for h := range in.labels {
			in.labels[h] = rng.Intn(cfg.NumBlocks())
		}
	}
	in.numBlocks = maxLabel(in.labels) + 1

	if path := cfg.NodeLabelsFile(); path != "" {
		labels, err := parser.ReadNodeLabelsFile(path)
		if err != nil {
			return nil, err
		}
		in.groups = parser.AlignNodeLabels(g, labels, 0)
	}
	if path := cfg.BarrierLabelsFile(); path != "" {
		if in.barriers, err = parser.ReadLabelsFile(path); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("file", graphFile).
		Int("nodes", g.NumNodes()).
		Int("edges", g.NumEdges()).
		Bool("directed", g.Directed()).
		Msg("Graph loaded")
	return in, nil
}

func maxLabel(labels []int) int {
	m := 0
	for _, r := range labels {
		if r > m {
			m = r
		}
	}
	return m
}

func newState(cfg *blockmodel.Config, logger zerolog.Logger, in *input, opts ...blockmodel.Option) (*blockmodel.State, error) {
	p, err := cfg.Params(in.labels, in.numBlocks)
	if err != nil {
		return nil, err
	}
	p.PartitionLabels = in.groups
	if in.barriers != nil {
		if len(in.barriers) < in.numBlocks {
			return nil, errors.Errorf("%d barrier labels for %d blocks", len(in.barriers), in.numBlocks)
		}
		p.NumBlocks = len(in.barriers)
		p.BarrierLabels = in.barriers
	}
	opts = append([]blockmodel.Option{
		blockmodel.WithLogger(logger),
		blockmodel.WithEntropyOptions(cfg.EntropyOptions()),
	}, opts...)
	return blockmodel.New(in.graph, p, opts...)
}

// evaluate reports the description length of every labelling in
// labelFiles, each on its own copy of the state. Without label files the
// initial partition is reported.
func evaluate(ctx context.Context, cfg *blockmodel.Config, logger zerolog.Logger, graphFile string, labelFiles []string) ([]Report, error) {
	in, err := loadInput(cfg, logger, graphFile)
	if err != nil {
		return nil, err
	}

	partitions := make([][]int, len(labelFiles))
	for i, path := range labelFiles {
		if partitions[i], err = parser.ReadLabelsFile(path); err != nil {
			return nil, err
		}
		if len(partitions[i]) != in.graph.NumHalfEdges() {
			return nil, errors.Errorf("%s: %d labels for %d half-edges", path, len(partitions[i]), in.graph.NumHalfEdges())
		}
		if m := maxLabel(partitions[i]) + 1; m > in.numBlocks {
			in.numBlocks = m
		}
	}

	reg := prometheus.NewRegistry()
	base, err := newState(cfg, logger, in, blockmodel.WithMetrics(blockmodel.NewMetrics(reg)))
	if err != nil {
		return nil, err
	}
	if len(labelFiles) == 0 {
		r, err := report(cfg, base, graphFile)
		if err != nil {
			return nil, err
		}
		r.NMI = 1
		return []Report{r}, nil
	}

	reports := make([]Report, len(labelFiles))
	eg, ctx := errgroup.WithContext(ctx)
	for i := range labelFiles {
		i := i
		st := base.Clone()
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := st.SetPartition(partitions[i]); err != nil {
				return errors.Wrap(err, labelFiles[i])
			}
			if err := st.Validate(); err != nil {
				return errors.Wrap(err, labelFiles[i])
			}
			r, err := report(cfg, st, labelFiles[i])
			reports[i] = r
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// overlap splits of every labelling against the first one
	for i := range reports {
		if reports[i].NMI, err = validation.NormalizedMutualInfo(reports[0].Split, reports[i].Split); err != nil {
			return nil, err
		}
	}

	logMetrics(logger, reg)
	return reports, nil
}

func report(cfg *blockmodel.Config, st *blockmodel.State, source string) (Report, error) {
	opts := cfg.EntropyOptions()
	total, err := st.Entropy(opts)
	if err != nil {
		return Report{}, err
	}

	r := Report{
		Source: source,
		Chain:  st.Chain(),
		Nodes:  st.Graph().NumNodes(),
		Edges:  st.Graph().NumEdges(),
		Blocks: st.NumBlocks(),
		Sparse: st.SparseEntropy(opts.Multigraph, opts.DegEntropy),
		Split:  st.OverlapSplit(),
	}
	for b := 0; b < st.NumBlocks(); b++ {
		if st.Wr(b) > 0 {
			r.Occupied++
		}
	}
	if opts.PartitionDL {
		r.PartitionDL = st.PartitionDL()
	}
	if opts.DegreeDL && st.DegCorr() {
		r.DegreeDL = st.DegDL(opts.DegDL)
	}
	if opts.EdgesDL {
		r.EdgesDL = st.EdgesDL()
	}
	r.Total = floats.Sum([]float64{r.Sparse, r.PartitionDL, r.DegreeDL, r.EdgesDL})
	if math.Abs(r.Total-total) > 1e-6*math.Max(1, math.Abs(total)) {
		return r, errors.Errorf("entropy terms sum to %f, total is %f", r.Total, total)
	}
	if cfg.IncludeOverlap() {
		r.Overlap = st.BVOverlap()
	}
	return r, nil
}

func writeReports(w io.Writer, format string, reports []Report) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	return errors.Errorf("unknown output format %q", format)
}

// replay applies a move list, or N sampled proposals, to the initial
// partition. Every committed change is checked against its virtual
// estimate and, unless trackFile is empty, written to trackFile.
func replay(cfg *blockmodel.Config, logger zerolog.Logger, graphFile, movesArg, trackFile string) error {
	in, err := loadInput(cfg, logger, graphFile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []blockmodel.Option{blockmodel.WithMetrics(blockmodel.NewMetrics(reg))}
	var tracker *utils.MoveTracker
	if trackFile != "" {
		if tracker, err = utils.NewMoveTracker(trackFile, logger); err != nil {
			return err
		}
		defer tracker.Close()
		opts = append(opts, blockmodel.WithObserver(tracker))
	}

	st, err := newState(cfg, logger, in, opts...)
	if err != nil {
		return err
	}

	c := cfg.ProposalC()
	eopts := cfg.EntropyOptions()
	mopts := cfg.MoveOptions()
	st.InitMCMC(c, eopts.PartitionDL || eopts.DegreeDL || eopts.EdgesDL)

	next, total, err := moveSource(cfg, st, movesArg, c)
	if err != nil {
		return err
	}

	S, err := st.Entropy(eopts)
	if err != nil {
		return err
	}
	start := S
	logger.Info().Float64("entropy", S).Int("moves", total).Msg("Replay started")

	var m blockmodel.MoveEntries
	applied, mismatches, rejected := 0, 0, 0
	for i := 0; i < total; i++ {
		mv := next(i)
		if int(mv.HalfEdge) >= st.Graph().NumHalfEdges() {
			return errors.Errorf("move %d: half-edge %d out of range", i+1, mv.HalfEdge)
		}
		r := st.Block(mv.HalfEdge)

		dS, err := st.VirtualMoveWith(mv.HalfEdge, mv.To, mopts, &m)
		if err != nil {
			return err
		}
		if math.IsInf(dS, 1) {
			rejected++
			continue
		}
		var pf, pb float64
		if !math.IsInf(c, 1) && r != mv.To && mv.To < st.NumBlocks() {
			pf = st.MoveProb(mv.HalfEdge, r, mv.To, c, false)
			pb = st.MoveProbWith(mv.HalfEdge, mv.To, r, c, true, &m)
		}

		if err := st.MoveVertex(mv.HalfEdge, mv.To); err != nil {
			return err
		}
		applied++

		after, err := st.Entropy(eopts)
		if err != nil {
			return err
		}
		if math.Abs(after-S-dS) > 1e-6 {
			mismatches++
			logger.Warn().
				Int("move", i+1).
				Float64("virtual", dS).
				Float64("committed", after-S).
				Msg("Virtual and committed entropy differ")
		}
		logger.Debug().
			Int("half_edge", int(mv.HalfEdge)).
			Int("from", r).
			Int("to", mv.To).
			Float64("delta", dS).
			Float64("p_forward", pf).
			Float64("p_backward", pb).
			Msg("Move applied")
		S = after
	}

	if err := st.Validate(); err != nil {
		return err
	}
	logMetrics(logger, reg)

	fmt.Println("\n=== Replay ===")
	fmt.Printf("Moves applied:     %d\n", applied)
	fmt.Printf("Barrier rejected:  %d\n", rejected)
	fmt.Printf("Delta mismatches:  %d\n", mismatches)
	fmt.Printf("Entropy:           %.6f -> %.6f\n", start, S)
	fmt.Printf("Blocks in use:     %d of %d\n", occupied(st), st.NumBlocks())
	if tracker != nil {
		fmt.Printf("Move log:          %s (%d moves)\n", trackFile, tracker.Count())
	}

	if mismatches > 0 {
		return errors.Errorf("%d moves with mismatching entropy deltas", mismatches)
	}
	return nil
}

// moveSource returns the i-th move and the number of moves. "random:N"
// samples N proposals from the state itself.
func moveSource(cfg *blockmodel.Config, st *blockmodel.State, arg string, c float64) (func(int) parser.Move, int, error) {
	if n, ok := strings.CutPrefix(arg, "random:"); ok {
		total, err := strconv.Atoi(n)
		if err != nil || total < 0 {
			return nil, 0, errors.Errorf("invalid move count %q", n)
		}
		rng := rand.New(rand.NewSource(uint64(cfg.RandomSeed())))
		return func(int) parser.Move {
			h := halfedge.HalfEdgeID(rng.Intn(st.Graph().NumHalfEdges()))
			return parser.Move{HalfEdge: h, To: st.SampleBlock(h, c, nil, rng)}
		}, total, nil
	}

	moves, err := parser.ReadMovesFile(arg)
	if err != nil {
		return nil, 0, err
	}
	return func(i int) parser.Move { return moves[i] }, len(moves), nil
}

func occupied(st *blockmodel.State) int {
	n := 0
	for r := 0; r < st.NumBlocks(); r++ {
		if st.Wr(r) > 0 {
			n++
		}
	}
	return n
}

func logMetrics(logger zerolog.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to gather metrics")
		return
	}
	ev := logger.Info()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				ev = ev.Float64(mf.GetName(), m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				ev = ev.Float64(mf.GetName(), m.GetGauge().GetValue())
			}
		}
	}
	ev.Msg("Metrics")
}
