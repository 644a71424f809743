// Package machine simulates the parts of the host machine the kernel talks
// to: the register file, the physical memory arena, the page table register
// and the interrupt level. Instruction execution is delegated to a CPU.
package machine

import (
	"github.com/evanphx/nachos/log"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// User-visible registers.
const (
	NumGPRegs = 32

	StackReg     = 29
	RetAddrReg   = 31
	HiReg        = 32
	LoReg        = 33
	PCReg        = 34
	NextPCReg    = 35
	PrevPCReg    = 36
	LoadReg      = 37
	LoadValueReg = 38
	BadVAddrReg  = 39

	NumTotalRegs = 40
)

// CPU executes user instructions against a Machine. Run is expected to
// loop until the running program leaves through an exception that never
// returns (the exit system call).
type CPU interface {
	Run(m *Machine)
}

// ExceptionHandler is called by RaiseException. It is typically the
// kernel's exception dispatcher.
type ExceptionHandler func(which ExceptionType)

var (
	ErrNoCPU     = errors.New("machine has no cpu attached")
	ErrBadConfig = errors.New("bad machine configuration")
)

type Machine struct {
	L hclog.Logger

	PageSize     int
	NumPhysPages int

	mainMemory []byte
	registers  [NumTotalRegs]int32

	pageTable     []TranslationEntry
	pageTableSize int

	cpu     CPU
	handler ExceptionHandler
}

func New(pageSize, numPhysPages int) (*Machine, error) {
	if pageSize <= 0 || numPhysPages <= 0 {
		return nil, errors.Wrapf(ErrBadConfig, "page size=%d, physical pages=%d", pageSize, numPhysPages)
	}

	m := &Machine{
		L:            log.Named("machine"),
		PageSize:     pageSize,
		NumPhysPages: numPhysPages,
		mainMemory:   make([]byte, pageSize*numPhysPages),
	}

	return m, nil
}

func (m *Machine) MemorySize() int {
	return len(m.mainMemory)
}

// Memory exposes the whole physical arena.
func (m *Machine) Memory() []byte {
	return m.mainMemory
}

// Frame returns the bytes of physical frame i.
func (m *Machine) Frame(i int) []byte {
	start := i * m.PageSize
	return m.mainMemory[start : start+m.PageSize]
}

func (m *Machine) ReadRegister(num int) int32 {
	return m.registers[num]
}

func (m *Machine) WriteRegister(num int, value int32) {
	m.registers[num] = value
}

// InstallPageTable makes table the active translation context.
func (m *Machine) InstallPageTable(table []TranslationEntry, size int) {
	m.pageTable = table
	m.pageTableSize = size
}

// PageTable returns the active translation context.
func (m *Machine) PageTable() ([]TranslationEntry, int) {
	return m.pageTable, m.pageTableSize
}

func (m *Machine) SetCPU(cpu CPU) {
	m.cpu = cpu
}

func (m *Machine) SetExceptionHandler(h ExceptionHandler) {
	m.handler = h
}

// Run transfers control to the CPU. It only returns if the CPU does, which
// callers treat as a logic error.
func (m *Machine) Run() {
	if m.cpu == nil {
		panic(ErrNoCPU)
	}

	m.L.Trace("entering user mode")
	m.cpu.Run(m)
}

// AdvancePC moves the program counters past the current instruction, the
// way a system call returns to the instruction after it.
func (m *Machine) AdvancePC() {
	m.registers[PrevPCReg] = m.registers[PCReg]
	m.registers[PCReg] = m.registers[NextPCReg]
	m.registers[NextPCReg] += 4
}

// RaiseException records the faulting address and hands control to the
// exception handler.
func (m *Machine) RaiseException(which ExceptionType, badVAddr uint32) {
	m.L.Debug("exception", "type", which, "badvaddr", badVAddr)

	m.registers[BadVAddrReg] = int32(badVAddr)

	if m.handler == nil {
		panic(errors.Errorf("unhandled exception %s", which))
	}

	m.handler(which)
}
