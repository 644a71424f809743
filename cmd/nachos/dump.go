package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/evanphx/nachos/kernel"
	"github.com/evanphx/nachos/loader"
	"github.com/evanphx/nachos/userprog"
)

func dump(k *kernel.Kernel, name string) error {
	f, err := k.FileSystem.Open(name)
	if err != nil {
		return err
	}

	hdr, err := k.Loader.ReadHeader(f)
	f.Close()

	if err != nil {
		return err
	}

	fmt.Printf("\n[%s]\n", name)
	fmt.Printf("magic=%#08x swapped=%t size=%d\n", hdr.Magic, hdr.Swapped, hdr.Size())

	tr := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)

	fmt.Fprintf(tr, "segment\tvaddr\tinfile\tsize\n")

	segments := []struct {
		name string
		seg  loader.Segment
	}{
		{"code", hdr.Code},
		{"readonly", hdr.ReadOnlyData},
		{"data", hdr.InitData},
		{"bss", hdr.UninitData},
	}

	for _, s := range segments {
		if s.name == "readonly" && !hdr.HasReadOnlyData {
			continue
		}

		fmt.Fprintf(tr, "%s\t%#x\t%#x\t%d\n", s.name, s.seg.VirtualAddr, s.seg.InFileAddr, s.seg.Size)
	}

	tr.Flush()

	space := userprog.NewAddressSpace(userprog.Env{
		Machine:       k.Machine,
		Frames:        k.Frames,
		FileSystem:    k.FileSystem,
		Loader:        k.Loader,
		UserStackSize: k.Config().UserStackSize,
	})

	err = space.Load(name)
	if err != nil {
		return err
	}

	defer space.Release()

	fmt.Printf("\n[page table]\n")
	space.Dump(os.Stdout)

	return nil
}
