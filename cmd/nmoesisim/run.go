package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ansel1/merry"
	"github.com/fatih/structs"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/nmoesi/datarecording"
	"github.com/sarchlab/nmoesi/mem/coherence"
	"github.com/sarchlab/nmoesi/mem/trace"
	"github.com/sarchlab/nmoesi/noc"
	"github.com/sarchlab/nmoesi/sim/hooking"
	"github.com/sarchlab/nmoesi/sim/id"
	"github.com/sarchlab/nmoesi/sim/timing"
)

var (
	simCfg      = defaultConfig()
	workCfg     = defaultWorkload()
	recordPath  string
	record      bool
	traceTasks  bool
	parallelIDs bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic workload on a cache hierarchy.",
	Long: "Run builds L1 caches over shared L2 banks over main memory, " +
		"issues random loads, stores and nc-stores from every L1 and " +
		"prints the statistics of every module.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if parallelIDs {
			id.UseParallelIDGenerator()
		}

		if record && recordPath == "" {
			recordPath = "nmoesisim_" + xid.New().String()
		}

		result, err := simulate(simCfg, workCfg, runOptions{
			recordPath: recordPath,
			traceTasks: traceTasks,
			logger:     logger,
		})
		if err != nil {
			return err
		}

		result.print(cmd.OutOrStdout())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()

	f.Float64Var(&simCfg.FreqGHz, "freq", simCfg.FreqGHz,
		"Clock frequency in GHz.")
	f.IntVar(&simCfg.NetLatency, "net-latency", simCfg.NetLatency,
		"Network latency in cycles.")
	f.IntVar(&simCfg.NetBW, "net-bandwidth", simCfg.NetBW,
		"Bytes a network node can send per cycle.")
	f.Int64Var(&simCfg.Seed, "seed", simCfg.Seed,
		"Seed of the victim finders and the retry latencies.")

	levelFlags(f, "l1", &simCfg.L1)
	levelFlags(f, "l2", &simCfg.L2)
	levelFlags(f, "mem", &simCfg.Mem)

	f.IntVar(&workCfg.NumAccesses, "accesses", workCfg.NumAccesses,
		"Accesses issued by every L1.")
	f.Uint64Var(&workCfg.Footprint, "footprint", workCfg.Footprint,
		"Bytes of the shared region and of every private region.")
	f.Uint64Var(&workCfg.Stride, "stride", workCfg.Stride,
		"Granularity of the generated addresses.")
	f.Float64Var(&workCfg.StoreRatio, "store-ratio", workCfg.StoreRatio,
		"Fraction of the accesses that are stores.")
	f.Float64Var(&workCfg.NCStoreRatio, "nc-store-ratio",
		workCfg.NCStoreRatio, "Fraction of the accesses that are nc-stores.")
	f.Float64Var(&workCfg.SharedRatio, "shared-ratio", workCfg.SharedRatio,
		"Fraction of the accesses that go to the shared region.")
	f.IntVar(&workCfg.MaxInflight, "max-inflight", workCfg.MaxInflight,
		"Accesses an L1 keeps in flight at most.")
	f.IntVar(&workCfg.Interval, "interval", workCfg.Interval,
		"Cycles between two issue attempts.")
	f.Int64Var(&workCfg.Seed, "workload-seed", workCfg.Seed,
		"Seed of the address and kind generator.")

	f.BoolVar(&record, "record", false,
		"Record accesses and statistics into a SQLite database.")
	f.StringVar(&recordPath, "record-path", "",
		"Database name, without the .sqlite3 suffix. Implies --record.")
	f.BoolVar(&traceTasks, "trace", false,
		"Also record every access task with its protocol steps.")
	f.BoolVar(&parallelIDs, "xid", false,
		"Use globally unique task IDs instead of sequential ones.")
}

type flagSet interface {
	IntVar(p *int, name string, value int, usage string)
	Uint64Var(p *uint64, name string, value uint64, usage string)
	StringVar(p *string, name string, value string, usage string)
}

func levelFlags(f flagSet, prefix string, l *levelConfig) {
	f.IntVar(&l.Count, prefix+"-count", l.Count,
		"Number of modules at the level.")
	f.Uint64Var(&l.ByteSize, prefix+"-size", l.ByteSize,
		"Capacity of a module in bytes.")
	f.IntVar(&l.Ways, prefix+"-ways", l.Ways, "Associativity.")
	f.IntVar(&l.Log2BlockSize, prefix+"-log2-block", l.Log2BlockSize,
		"Log2 of the block size.")
	f.IntVar(&l.Log2SubBlock, prefix+"-log2-sub-block", l.Log2SubBlock,
		"Log2 of the bytes tracked by a directory entry, 0 for a block.")
	f.IntVar(&l.DirLatency, prefix+"-dir-latency", l.DirLatency,
		"Directory latency in cycles.")
	f.IntVar(&l.DataLatency, prefix+"-data-latency", l.DataLatency,
		"Data latency in cycles.")
	f.IntVar(&l.NumPorts, prefix+"-ports", l.NumPorts,
		"Lookups that can proceed at the same time.")
	f.StringVar(&l.Replacement, prefix+"-replacement", l.Replacement,
		"Replacement policy: lru, fifo or random.")
}

type runOptions struct {
	recordPath string
	traceTasks bool
	logger     *logrus.Logger
}

type simResult struct {
	endTime   float64
	cycles    uint64
	issued    int
	finished  int
	events    uint64
	maxWidth  int
	avgWidth  float64
	modules   []*coherence.Module
	latencies []hooking.LatencyGroup
	steps     *hooking.StepCountTracer
	traffic   map[string]*noc.TrafficCounter
	netNames  []string
	database  string
}

//nolint:funlen
func simulate(
	cfg simConfig,
	wl workloadConfig,
	opts runOptions,
) (*simResult, error) {
	h, err := buildHierarchy(cfg, opts.logger)
	if err != nil {
		return nil, err
	}

	freq := timing.Freq(cfg.FreqGHz) * timing.GHz

	w, err := newWorkload(wl, h, freq)
	if err != nil {
		return nil, err
	}

	width := &timing.IssueWidthCounter{}
	h.engine.AcceptHook(width)

	if opts.logger.IsLevelEnabled(logrus.TraceLevel) {
		h.engine.AcceptHook(timing.NewEventLogger(opts.logger))
	}

	latency := hooking.NewLatencyTracer(h.engine, nil)
	steps := hooking.NewStepCountTracer(nil)

	for _, l1 := range h.l1s {
		l1.AcceptHook(latency)
		l1.AcceptHook(steps)
	}

	result := &simResult{
		modules: h.modules(),
		traffic: make(map[string]*noc.TrafficCounter),
	}

	for _, net := range []*noc.Network{h.upperNet, h.lowerNet} {
		counter := noc.NewTrafficCounter()
		net.AcceptHook(counter)
		result.traffic[net.Name()] = counter
		result.netNames = append(result.netNames, net.Name())
	}

	var (
		recorder datarecording.DataRecorder
		tracer   *trace.TaskTracer
	)

	if opts.recordPath != "" {
		recorder = datarecording.New(opts.recordPath)

		accesses := trace.NewAccessRecorder(recorder)
		for _, l1 := range h.l1s {
			l1.AcceptHook(accesses)
		}

		if opts.traceTasks {
			tracer = trace.NewTaskTracer(h.engine, recorder)
			for _, l1 := range h.l1s {
				l1.AcceptHook(tracer)
			}
		}
	}

	w.Start()

	err = h.engine.Run()
	if err != nil {
		return nil, merry.Wrap(err)
	}

	if h.proto.NumLiveOperations() != 0 {
		return nil, merry.Errorf("%d operations never finished",
			h.proto.NumLiveOperations())
	}

	result.endTime = h.engine.Now()
	result.cycles = freq.Cycle(result.endTime)
	result.issued = w.NumIssued()
	result.finished = w.NumFinished()
	result.events = h.engine.NumHandledEvents()
	result.latencies = latency.Groups()
	result.steps = steps
	result.maxWidth = width.MaxWidth()
	result.avgWidth = width.AverageWidth()

	if recorder != nil {
		if tracer != nil {
			tracer.Terminate()
		}

		trace.RecordStats(recorder, result.modules)

		if err := recorder.Close(); err != nil {
			return nil, merry.Wrap(err)
		}

		result.database = opts.recordPath
	}

	opts.logger.WithFields(logrus.Fields{
		"issued":   result.issued,
		"finished": result.finished,
		"cycles":   result.cycles,
	}).Info("simulation finished")

	return result, nil
}

func (r *simResult) print(out io.Writer) {
	fmt.Fprintf(out, "accesses %d/%d, %d cycles, %d events\n",
		r.finished, r.issued, r.cycles, r.events)
	fmt.Fprintf(out, "events per time: %.2f average, %d max\n\n",
		r.avgWidth, r.maxWidth)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "kind\tcount\tavg (ns)\tmax (ns)")
	for _, g := range r.latencies {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\n",
			g.What, g.Count, g.AverageTime()*1e9, g.MaxTime*1e9)
	}

	if r.steps != nil && len(r.steps.GetStepNames()) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "step\tcount")

		for _, name := range r.steps.GetStepNames() {
			fmt.Fprintf(tw, "%s\t%d\n", name, r.steps.GetStepCount(name))
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "network\tmessages\tbytes")

	for _, name := range r.netNames {
		c := r.traffic[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\n", name, c.TotalMsgs, c.TotalBytes)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "module\tcounter\tvalue")

	for _, m := range r.modules {
		for _, f := range structs.Fields(m.Stats()) {
			v := f.Value().(uint64)
			if v == 0 {
				continue
			}

			fmt.Fprintf(tw, "%s\t%s\t%d\n", m.Name(), f.Name(), v)
		}
	}

	tw.Flush()

	if r.database != "" {
		fmt.Fprintf(out, "\nrecorded to %s.sqlite3\n", r.database)
	}
}
