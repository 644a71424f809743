// Package userprog manages the address spaces user programs run in.
package userprog

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/loader"
	"github.com/evanphx/nachos/log"
	"github.com/evanphx/nachos/machine"
	"github.com/evanphx/nachos/memory"
	"github.com/evanphx/nachos/threads"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var (
	ErrOpenFailed = errors.New("unable to open executable")
	ErrShortRead  = errors.New("executable shorter than its header claims")
)

// Env is what an address space needs from the rest of the kernel.
type Env struct {
	Machine    *machine.Machine
	Frames     *memory.FrameTable
	FileSystem fs.FileSystem
	Loader     *loader.Loader

	// UserStackSize is reserved above the program's segments.
	UserStackSize int
}

// AddressSpace is a user program's page table and the physical frames it
// maps. Virtual page i is entry i.
type AddressSpace struct {
	L hclog.Logger

	env Env

	pageTable []machine.TranslationEntry
	numPages  int
}

func NewAddressSpace(env Env) *AddressSpace {
	return &AddressSpace{
		L:   log.Named("addrspace"),
		env: env,
	}
}

func (as *AddressSpace) NumPages() int {
	return as.numPages
}

// PageTable is the live page table. Callers must not keep it past Release.
func (as *AddressSpace) PageTable() []machine.TranslationEntry {
	return as.pageTable
}

// Load reads the NOFF image name into freshly allocated, zeroed frames.
// Only a missing executable is reported as an error; a corrupt header or
// running out of frames is fatal.
func (as *AddressSpace) Load(name string) error {
	assertf(as.pageTable == nil, "address space already loaded")

	executable, err := as.env.FileSystem.Open(name)
	if err != nil {
		as.L.Error("unable to open file", "name", name, "error", err)
		return errors.Wrapf(ErrOpenFailed, "%s: %s", name, err)
	}

	defer executable.Close()

	noffH, err := as.env.Loader.ReadHeader(executable)
	assertf(err == nil, "reading header of %s: %v", name, err)

	pageSize := as.env.Machine.PageSize

	size := int(noffH.Size()) + as.env.UserStackSize

	as.numPages = memory.DivRoundUp(size, pageSize)
	as.pageTable = make([]machine.TranslationEntry, as.numPages)

	for i := range as.pageTable {
		frame, err := as.env.Frames.Allocate()
		assertf(err == nil, "allocating page %d of %s: %v", i, name, err)

		as.pageTable[i] = machine.TranslationEntry{
			VirtualPage:  i,
			PhysicalPage: frame,
			Valid:        true,
		}

		clear(as.env.Machine.Frame(frame))
	}

	as.L.Debug("initializing address space", "pages", as.numPages, "size", size)

	type namedSegment struct {
		name string
		seg  loader.Segment
	}

	segments := []namedSegment{
		{"code", noffH.Code},
		{"data", noffH.InitData},
	}

	if noffH.HasReadOnlyData {
		segments = append(segments, namedSegment{"readonly", noffH.ReadOnlyData})
	}

	for _, s := range segments {
		if s.seg.Size == 0 {
			continue
		}

		as.L.Debug("initializing segment", "segment", s.name, "vaddr", s.seg.VirtualAddr, "size", s.seg.Size)

		err = as.loadSegment(executable, s.seg)
		if err != nil {
			as.Release()
			return errors.Wrapf(err, "loading %s segment of %s", s.name, name)
		}
	}

	return nil
}

// chunkSize is how many of the remaining bytes starting at vaddr fit before
// the next page boundary.
func chunkSize(vaddr, remaining, pageSize int) int {
	size := (vaddr/pageSize+1)*pageSize - vaddr
	if size > remaining {
		size = remaining
	}

	return size
}

// loadSegment copies seg out of the file one page-bounded chunk at a time,
// since consecutive virtual pages need not be consecutive frames.
func (as *AddressSpace) loadSegment(executable fs.File, seg loader.Segment) error {
	mem := as.env.Machine.Memory()

	remaining := int(seg.Size)
	vaddr := int(seg.VirtualAddr)
	inFile := int64(seg.InFileAddr)

	for remaining > 0 {
		size := chunkSize(vaddr, remaining, as.env.Machine.PageSize)

		paddr, exc := as.Translate(uint32(vaddr), true)
		assertf(exc == machine.NoException, "segment address %#x: %s", vaddr, exc)

		n, err := executable.ReadAt(mem[paddr:int(paddr)+size], inFile)
		if n < size {
			if err == nil || err == io.EOF {
				err = ErrShortRead
			}

			return errors.Wrapf(err, "offset %d: read %d of %d bytes", inFile, n, size)
		}

		remaining -= size
		vaddr += size
		inFile += int64(size)
	}

	return nil
}

// Execute runs the loaded program on t, which must be the current thread.
// It does not return: the program leaves through the exit system call.
func (as *AddressSpace) Execute(t *threads.Thread) {
	t.Space = as

	as.InitRegisters()
	as.RestoreState()

	as.env.Machine.Run()

	assertf(false, "machine returned to %s", t)
}

// InitRegisters sets up the machine for a fresh start at virtual address 0.
func (as *AddressSpace) InitRegisters() {
	m := as.env.Machine

	for i := 0; i < machine.NumTotalRegs; i++ {
		m.WriteRegister(i, 0)
	}

	m.WriteRegister(machine.PCReg, 0)

	// Branch delay: the instruction after the first one is at 4.
	m.WriteRegister(machine.NextPCReg, 4)

	// Back off the very end so the first push stays inside the space.
	sp := int32(as.numPages*m.PageSize - 16)
	m.WriteRegister(machine.StackReg, sp)

	as.L.Debug("initializing stack pointer", "sp", sp)
}

// SaveState keeps any machine state specific to this space across a
// context switch. There is none yet.
func (as *AddressSpace) SaveState() {}

// RestoreState makes this space the machine's translation context.
func (as *AddressSpace) RestoreState() {
	as.env.Machine.InstallPageTable(as.pageTable, as.numPages)
}

// Translate maps vaddr to a physical address, setting the use bit and, for
// writes, the dirty bit. Failures come back as the exception to raise.
func (as *AddressSpace) Translate(vaddr uint32, isWrite bool) (uint32, machine.ExceptionType) {
	m := as.env.Machine
	pageSize := uint32(m.PageSize)

	vpn := vaddr / pageSize
	offset := vaddr % pageSize

	if vpn >= uint32(as.numPages) {
		return 0, machine.AddressErrorException
	}

	pte := &as.pageTable[vpn]

	if isWrite && pte.ReadOnly {
		return 0, machine.ReadOnlyException
	}

	pfn := pte.PhysicalPage

	// An out of range frame means the table itself is corrupt.
	if pfn < 0 || pfn >= m.NumPhysPages {
		as.L.Debug("illegal physical page", "pfn", pfn)
		return 0, machine.BusErrorException
	}

	pte.Use = true

	if isWrite {
		pte.Dirty = true
	}

	paddr := uint32(pfn)*pageSize + offset

	assertf(int(paddr) < m.MemorySize(), "physical address %#x past end of memory", paddr)

	return paddr, machine.NoException
}

// ReadMem reads a 1, 2 or 4 byte little-endian value at vaddr.
func (as *AddressSpace) ReadMem(vaddr uint32, size int) (uint32, machine.ExceptionType) {
	paddr, exc := as.access(vaddr, size, false)
	if exc != machine.NoException {
		return 0, exc
	}

	mem := as.env.Machine.Memory()[paddr:]

	switch size {
	case 1:
		return uint32(mem[0]), machine.NoException
	case 2:
		return uint32(binary.LittleEndian.Uint16(mem)), machine.NoException
	default:
		return binary.LittleEndian.Uint32(mem), machine.NoException
	}
}

// WriteMem writes a 1, 2 or 4 byte little-endian value at vaddr.
func (as *AddressSpace) WriteMem(vaddr uint32, size int, value uint32) machine.ExceptionType {
	paddr, exc := as.access(vaddr, size, true)
	if exc != machine.NoException {
		return exc
	}

	mem := as.env.Machine.Memory()[paddr:]

	switch size {
	case 1:
		mem[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(mem, uint16(value))
	default:
		binary.LittleEndian.PutUint32(mem, value)
	}

	return machine.NoException
}

// access translates an aligned access of size bytes.
func (as *AddressSpace) access(vaddr uint32, size int, isWrite bool) (uint32, machine.ExceptionType) {
	switch size {
	case 1, 2, 4:
	default:
		panic(errors.Errorf("bad access size %d", size))
	}

	if vaddr%uint32(size) != 0 {
		return 0, machine.AddressErrorException
	}

	return as.Translate(vaddr, isWrite)
}

// Release returns every mapped frame to the frame table. The owning thread
// must never run again.
func (as *AddressSpace) Release() {
	for _, pte := range as.pageTable {
		if !pte.Valid {
			continue
		}

		err := as.env.Frames.Free(pte.PhysicalPage)
		assertf(err == nil, "releasing page %d: %v", pte.VirtualPage, err)
	}

	as.L.Trace("released address space", "pages", as.numPages)

	as.pageTable = nil
	as.numPages = 0
}

// Dump writes the page table to w.
func (as *AddressSpace) Dump(w io.Writer) {
	fmt.Fprintf(w, "pages: %d\n", as.numPages)
	spew.Fdump(w, as.pageTable)
}

func assertf(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}

	err := errors.Errorf(format, args...)
	log.L.Error("assertion failed", "error", err)
	panic(err)
}
