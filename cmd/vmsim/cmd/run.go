package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/vmcore/cmd/vmsim/workload"
	"github.com/sarchlab/vmcore/datarecording"
	"github.com/sarchlab/vmcore/mem/vm/machine"
	"github.com/sarchlab/vmcore/mem/vm/swap"
	"github.com/sarchlab/vmcore/mem/vm/vmm"
	"github.com/sarchlab/vmcore/monitoring"
	"github.com/sarchlab/vmcore/sim/hooking"
	"github.com/sarchlab/vmcore/tracing"
)

// physBase is where simulated physical memory starts.
const physBase = 0x100000

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workload and report what the memory manager did.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := readRunOptions(cmd)
		if err != nil {
			return err
		}

		return run(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	d := workload.DefaultConfig()
	f := runCmd.Flags()
	f.Int("frames", 16, "Number of physical frames.")
	f.Int("swap-slots", 1024, "Number of swap slots.")
	f.String("swap-file", "", "Back swap with this file instead of memory.")
	f.Int("processes", d.Processes, "Number of processes.")
	f.Int("threads", d.Threads, "Number of threads per process.")
	f.Int("iterations", d.Iterations, "Accesses per thread.")
	f.Int("code-pages", d.CodePages, "Pages of code per process.")
	f.Int("data-pages", d.DataPages, "Pages of zeroed data per process.")
	f.Int("mmap-pages", d.MmapPages, "Pages of mapped file per process.")
	f.Int("stack-pages", d.StackPages, "Stack pages per thread.")
	f.Uint64("seed", d.Seed, "Seed of the access pattern.")
	f.String("trace-csv", "", "Write traced tasks to this CSV file (no suffix).")
	f.String("trace-db", "", "Write traced tasks to this SQLite file (no suffix).")
	f.String("trace-json", "", "Write traced tasks to this JSON file.")
	f.Int("monitor-port", 0, "Serve the monitor on this port. 0 disables it.")
	f.Bool("open-monitor", false, "Open the monitor in a browser.")
}

type runOptions struct {
	frames      int
	swapSlots   int
	swapFile    string
	workload    workload.Config
	traceCSV    string
	traceDB     string
	traceJSON   string
	monitorPort int
	openMonitor bool
	debugHooks  bool
}

func readRunOptions(cmd *cobra.Command) (runOptions, error) {
	f := cmd.Flags()
	o := runOptions{}

	o.frames, _ = f.GetInt("frames")
	o.swapSlots, _ = f.GetInt("swap-slots")
	o.swapFile, _ = f.GetString("swap-file")
	o.workload.Processes, _ = f.GetInt("processes")
	o.workload.Threads, _ = f.GetInt("threads")
	o.workload.Iterations, _ = f.GetInt("iterations")
	o.workload.CodePages, _ = f.GetInt("code-pages")
	o.workload.DataPages, _ = f.GetInt("data-pages")
	o.workload.MmapPages, _ = f.GetInt("mmap-pages")
	o.workload.StackPages, _ = f.GetInt("stack-pages")
	o.workload.Seed, _ = f.GetUint64("seed")
	o.traceCSV, _ = f.GetString("trace-csv")
	o.traceDB, _ = f.GetString("trace-db")
	o.traceJSON, _ = f.GetString("trace-json")
	o.monitorPort, _ = f.GetInt("monitor-port")
	o.openMonitor, _ = f.GetBool("open-monitor")

	level, _ := f.GetString("log-level")
	o.debugHooks = level == "debug"

	if err := o.workload.Validate(); err != nil {
		return o, err
	}

	// Every thread may hold a pinned frame while it faults.
	threads := o.workload.Processes * o.workload.Threads
	if o.frames <= threads {
		return o, fmt.Errorf("%d frames cannot serve %d threads", o.frames, threads)
	}

	return o, nil
}

type tracers struct {
	faultTime *tracing.AverageTimeTracer
	pageIn    *tracing.TotalTimeTracer
	pageOut   *tracing.StepCountTracer
	exec      *datarecording.ExecRecorder
}

func run(ctx context.Context, o runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	store, err := buildSwap(o)
	if err != nil {
		return err
	}

	pageDir := machine.NewPageDirectory(o.frames)
	memory := machine.NewPhysicalMemory(physBase, o.frames)
	manager := vmm.MakeBuilder().
		WithPhysicalMemory(memory).
		WithPageDirectory(pageDir).
		WithSwap(store).
		Build("VMM")
	m := machine.New(pageDir, memory, manager)

	if o.debugHooks {
		manager.AcceptHook(hooking.NewLogHook(nil, slog.LevelDebug))
		manager.Frames().AcceptHook(hooking.NewLogHook(nil, slog.LevelDebug))
	}

	t, err := attachTracers(manager, o)
	if err != nil {
		return err
	}

	var progress workload.Progress
	if o.monitorPort != 0 || o.openMonitor {
		monitor := monitoring.NewMonitor().WithPortNumber(o.monitorPort)
		monitor.RegisterManager(manager)
		url := monitor.StartServer()

		total := o.workload.Processes * o.workload.Threads * o.workload.Iterations
		bar := monitor.CreateProgressBar("Workload", uint64(total))
		defer monitor.CompleteProgressBar(bar)
		progress = bar

		if o.openMonitor {
			if err := browser.OpenURL(url); err != nil {
				slog.Warn("cannot open browser", "url", url, "error", err)
			}
		}
	}

	slog.Info("running workload",
		"frames", o.frames,
		"swap_slots", store.Capacity(),
		"pages", o.workload.Processes*o.workload.Pages())

	runErr := workload.NewRunner(o.workload, manager, m, progress).Run(ctx)

	report(manager, t)

	if runErr != nil {
		slog.Error("workload failed", "error", runErr)
	}

	return runErr
}

func buildSwap(o runOptions) (*swap.Store, error) {
	if o.swapFile == "" {
		return swap.NewStore(swap.NewMemoryDevice(o.swapSlots)), nil
	}

	device, err := swap.NewFileDevice(o.swapFile, o.swapSlots)
	if err != nil {
		return nil, err
	}

	atexit.Register(func() {
		if err := device.Close(); err != nil {
			slog.Error("closing swap file", "error", err)
		}
	})

	return swap.NewStore(device), nil
}

func attachTracers(manager *vmm.Manager, o runOptions) (*tracers, error) {
	clock := tracing.NewWallClock()
	t := &tracers{
		faultTime: tracing.NewAverageTimeTracer(clock,
			tracing.KindFilter(vmm.TaskKindFault)),
		pageIn: tracing.NewTotalTimeTracer(clock,
			tracing.KindFilter(vmm.TaskKindPageIn)),
		pageOut: tracing.NewStepCountTracer(
			tracing.KindFilter(vmm.TaskKindPageOut)),
	}

	tracing.CollectTrace(manager, t.faultTime)
	tracing.CollectTrace(manager, t.pageIn)
	tracing.CollectTrace(manager, t.pageOut)

	if o.traceCSV != "" {
		writer := tracing.NewCSVTraceWriter(o.traceCSV)
		tracing.CollectTrace(manager, tracing.NewWriterTracer(clock, writer))
	}

	if o.traceJSON != "" {
		file, err := os.Create(o.traceJSON)
		if err != nil {
			return nil, err
		}

		writer := tracing.NewJSONTraceWriter(file)
		tracing.CollectTrace(manager, tracing.NewWriterTracer(clock, writer))
	}

	if o.traceDB != "" {
		recorder := datarecording.New(o.traceDB)
		tracing.CollectTrace(manager, tracing.NewDBTracer(clock, recorder))

		t.exec = datarecording.NewExecRecorder(recorder)
		t.exec.Start()
		t.exec.Note("Frames", strconv.Itoa(o.frames))
		t.exec.Note("Swap Slots", strconv.Itoa(o.swapSlots))
	}

	return t, nil
}

func report(manager *vmm.Manager, t *tracers) {
	stats := manager.Stats()

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		panic(err)
	}

	fmt.Println(string(out))
	fmt.Printf("average fault time: %.3fus over %d faults\n",
		t.faultTime.AverageTime()*1e6, t.faultTime.TotalCount())
	fmt.Printf("total page-in time: %.3fms over %d page-ins, longest %.3fus\n",
		t.pageIn.TotalTime()*1e3, t.pageIn.Count(), t.pageIn.Longest()*1e6)

	for _, step := range t.pageOut.GetStepNames() {
		fmt.Printf("page-outs by %s: %d\n", step, t.pageOut.GetStepCount(step))
	}

	if t.exec != nil {
		t.exec.Note("Stats", string(out))
		t.exec.End()
	}
}
