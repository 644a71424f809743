package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/fs/host"
	"github.com/evanphx/nachos/fs/tarfs"
	"github.com/evanphx/nachos/kernel"
	clog "github.com/evanphx/nachos/log"
	"github.com/evanphx/nachos/syscalls"
	"github.com/spf13/pflag"
)

var (
	fRoot       = pflag.StringP("root", "r", ".", "directory or tar archive to load programs from")
	fExec       = pflag.StringSliceP("exec", "x", nil, "programs to run")
	fFrames     = pflag.Int("frames", 128, "physical page frames")
	fPageSize   = pflag.Int("page-size", 128, "bytes per page")
	fStack      = pflag.Int("stack", 1024, "user stack bytes per address space")
	fSteps      = pflag.Int("steps", 64, "instructions each program runs before exiting, 0 to run until it faults")
	fYieldEvery = pflag.Int("yield-every", 4, "instructions between forced yields, 0 to never yield")
	fNoRO       = pflag.Bool("no-readonly", false, "programs use the header layout without a read-only segment")
	fDump       = pflag.BoolP("dump", "d", false, "print each program's header and page table instead of running it")
)

func openRoot(path string) (fs.FileSystem, error) {
	if strings.HasSuffix(path, ".tar") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		defer f.Close()

		return tarfs.NewTarFS(f)
	}

	return host.NewHostFS(path)
}

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	programs := append(*fExec, pflag.Args()...)
	if len(programs) == 0 {
		fmt.Fprintf(os.Stderr, "usage: nachos [flags] -x program...\n")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	root, err := openRoot(*fRoot)
	if err != nil {
		log.Fatal(err)
	}

	cfg := kernel.DefaultConfig()
	cfg.NumPhysPages = *fFrames
	cfg.PageSize = *fPageSize
	cfg.UserStackSize = *fStack
	cfg.ReadOnlyData = !*fNoRO
	cfg.FileSystem = root
	cfg.Halt = func() {
		if cpuprofile != "" {
			pprof.StopCPUProfile()
			fmt.Printf("pprof: profiling finished\n")
		}

		os.Exit(0)
	}

	k, err := kernel.NewKernel(cfg)
	if err != nil {
		log.Fatal(err)
	}

	clog.L.Debug("booted", "boot", k.BootID)

	if *fDump {
		for _, name := range programs {
			err := dump(k, name)
			if err != nil {
				log.Fatal(err)
			}
		}

		return
	}

	k.SetCPU(&kernel.TraceCPU{
		Kernel:     k,
		Steps:      *fSteps,
		YieldEvery: *fYieldEvery,
	})

	k.SetInvoker(syscalls.NewInvoker(k))

	for _, name := range programs {
		t, err := k.Exec(name)
		if err != nil {
			log.Fatal(err)
		}

		t.OnDestroy(func() {
			fmt.Printf("%s exited with status %d\n", t, t.ExitStatus)
		})
	}

	k.RunUntilIdle()
	k.Halt()
}
