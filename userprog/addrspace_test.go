package userprog

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/loader"
	"github.com/evanphx/nachos/machine"
	"github.com/evanphx/nachos/memory"
	"github.com/evanphx/nachos/threads"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

const (
	testPageSize  = 128
	testFrames    = 32
	testStackSize = 256
)

// trackFS records whether every opened file was closed.
type trackFS struct {
	fs.MapFS
	open []*trackFile
}

type trackFile struct {
	fs.File
	closed bool
}

func (t *trackFile) Close() error {
	t.closed = true
	return t.File.Close()
}

func (t *trackFS) Open(name string) (fs.File, error) {
	f, err := t.MapFS.Open(name)
	if err != nil {
		return nil, err
	}

	tf := &trackFile{File: f}
	t.open = append(t.open, tf)

	return tf, nil
}

func (t *trackFS) allClosed() bool {
	for _, f := range t.open {
		if !f.closed {
			return false
		}
	}

	return true
}

func newEnv(t *testing.T, files fs.MapFS) (Env, *trackFS) {
	m, err := machine.New(testPageSize, testFrames)
	require.NoError(t, err)

	tfs := &trackFS{MapFS: files}

	return Env{
		Machine:       m,
		Frames:        memory.NewFrameTable(testFrames),
		FileSystem:    tfs,
		Loader:        loader.NewLoader(nil, true),
		UserStackSize: testStackSize,
	}, tfs
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}

	return b
}

func TestLoad(t *testing.T) {
	n := neko.Modern(t)

	n.It("fails without a file and holds no frames", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{})

		as := NewAddressSpace(env)

		err := as.Load("missing")
		require.Equal(t, ErrOpenFailed, errors.Cause(err))

		require.Equal(t, 0, as.NumPages())
		require.Equal(t, 0, env.Frames.InUse())
	})

	n.It("maps one fresh frame per page", func(t *testing.T) {
		im := &loader.Image{
			Code:             pattern(200, 1),
			ReadOnlyData:     pattern(10, 50),
			ReadOnlyDataAddr: 200,
			InitData:         pattern(30, 100),
			InitDataAddr:     210,
			UninitSize:       40,
			UninitAddr:       240,
			WithReadOnlyData: true,
		}

		env, tfs := newEnv(t, fs.MapFS{"prog": im.Bytes()})

		as := NewAddressSpace(env)
		require.NoError(t, as.Load("prog"))
		require.True(t, tfs.allClosed())

		want := memory.DivRoundUp(200+10+30+40+testStackSize, testPageSize)
		require.Equal(t, want, as.NumPages())
		require.Equal(t, want, env.Frames.InUse())

		seen := map[int]bool{}
		for i, pte := range as.PageTable() {
			require.Equal(t, i, pte.VirtualPage)
			require.True(t, pte.Valid)
			require.False(t, pte.ReadOnly)

			require.False(t, seen[pte.PhysicalPage])
			seen[pte.PhysicalPage] = true

			require.True(t, env.Frames.IsUsed(pte.PhysicalPage))
		}
	})

	n.It("zero-fills everything the image does not write", func(t *testing.T) {
		im := &loader.Image{
			Code:             pattern(130, 1),
			InitData:         pattern(20, 200),
			InitDataAddr:     300,
			UninitSize:       64,
			UninitAddr:       320,
			WithReadOnlyData: true,
		}

		env, _ := newEnv(t, fs.MapFS{"prog": im.Bytes()})

		mem := env.Machine.Memory()
		for i := range mem {
			mem[i] = 0xff
		}

		as := NewAddressSpace(env)
		require.NoError(t, as.Load("prog"))

		for vaddr := 0; vaddr < as.NumPages()*testPageSize; vaddr++ {
			var want byte

			switch {
			case vaddr < 130:
				want = im.Code[vaddr]
			case vaddr >= 300 && vaddr < 320:
				want = im.InitData[vaddr-300]
			}

			got, exc := as.ReadMem(uint32(vaddr), 1)
			require.Equal(t, machine.NoException, exc)
			require.Equal(t, want, byte(got), "vaddr %d", vaddr)
		}
	})

	n.It("splits a segment at page boundaries", func(t *testing.T) {
		seg := pattern(10, 10)

		im := &loader.Image{
			Code:     seg,
			CodeAddr: testPageSize - 5,
		}

		env, _ := newEnv(t, fs.MapFS{"prog": im.Bytes()})
		env.Loader = loader.NewLoader(nil, false)

		// Take frame 1 so pages 0 and 1 land in frames 0 and 2.
		_, err := env.Frames.Allocate()
		require.NoError(t, err)
		_, err = env.Frames.Allocate()
		require.NoError(t, err)
		require.NoError(t, env.Frames.Free(0))

		as := NewAddressSpace(env)
		require.NoError(t, as.Load("prog"))

		pt := as.PageTable()
		require.Equal(t, 0, pt[0].PhysicalPage)
		require.Equal(t, 2, pt[1].PhysicalPage)

		mem := env.Machine.Memory()

		first := mem[pt[0].PhysicalPage*testPageSize+testPageSize-5 : pt[0].PhysicalPage*testPageSize+testPageSize]
		second := mem[pt[1].PhysicalPage*testPageSize : pt[1].PhysicalPage*testPageSize+5]

		require.Equal(t, seg[:5], first)
		require.Equal(t, seg[5:], second)

		require.Equal(t, seg, append(append([]byte{}, first...), second...))

		require.Equal(t, 5, chunkSize(testPageSize-5, 10, testPageSize))
		require.Equal(t, 5, chunkSize(testPageSize, 5, testPageSize))
	})

	n.It("loads a byte-swapped image", func(t *testing.T) {
		im := &loader.Image{
			Code:             pattern(8, 1),
			WithReadOnlyData: true,
			Order:            binary.BigEndian,
		}

		env, _ := newEnv(t, fs.MapFS{"prog": im.Bytes()})

		as := NewAddressSpace(env)
		require.NoError(t, as.Load("prog"))

		word, exc := as.ReadMem(4, 4)
		require.Equal(t, machine.NoException, exc)
		require.Equal(t, binary.LittleEndian.Uint32(im.Code[4:]), word)
	})

	n.It("aborts on an image with a bad magic and still closes it", func(t *testing.T) {
		buf := (&loader.Image{Code: pattern(8, 1), WithReadOnlyData: true}).Bytes()
		binary.LittleEndian.PutUint32(buf, 0x12345678)

		env, tfs := newEnv(t, fs.MapFS{"prog": buf})

		as := NewAddressSpace(env)

		require.Panics(t, func() {
			as.Load("prog")
		})

		require.True(t, tfs.allClosed())
	})

	n.It("aborts when physical memory runs out", func(t *testing.T) {
		im := &loader.Image{
			Code:             pattern(testPageSize*testFrames, 1),
			WithReadOnlyData: true,
		}

		env, _ := newEnv(t, fs.MapFS{"prog": im.Bytes()})

		as := NewAddressSpace(env)

		require.Panics(t, func() {
			as.Load("prog")
		})
	})

	n.It("gives back its frames when the image is truncated", func(t *testing.T) {
		buf := (&loader.Image{Code: pattern(64, 1), WithReadOnlyData: true}).Bytes()
		buf = buf[:len(buf)-10]

		env, tfs := newEnv(t, fs.MapFS{"prog": buf})

		as := NewAddressSpace(env)

		err := as.Load("prog")
		require.Equal(t, ErrShortRead, errors.Cause(err))

		require.Equal(t, 0, env.Frames.InUse())
		require.True(t, tfs.allClosed())
	})

	n.Meow()
}

func loaded(t *testing.T, env Env, name string) *AddressSpace {
	as := NewAddressSpace(env)
	require.NoError(t, as.Load(name))

	return as
}

func TestTranslate(t *testing.T) {
	n := neko.Modern(t)

	image := (&loader.Image{Code: pattern(16, 1), WithReadOnlyData: true}).Bytes()

	n.It("rejects pages past the end of the space", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})
		as := loaded(t, env, "prog")

		end := uint32(as.NumPages() * testPageSize)

		_, exc := as.Translate(end, false)
		require.Equal(t, machine.AddressErrorException, exc)

		_, exc = as.Translate(end-1, false)
		require.Equal(t, machine.NoException, exc)
	})

	n.It("only refuses writes to read-only pages", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})
		as := loaded(t, env, "prog")

		pte := &as.PageTable()[1]
		pte.ReadOnly = true
		pte.Use = false
		pte.Dirty = false

		_, exc := as.Translate(testPageSize+4, true)
		require.Equal(t, machine.ReadOnlyException, exc)
		require.False(t, pte.Dirty)

		paddr, exc := as.Translate(testPageSize+4, false)
		require.Equal(t, machine.NoException, exc)
		require.Equal(t, uint32(pte.PhysicalPage*testPageSize+4), paddr)

		require.True(t, pte.Use)
		require.False(t, pte.Dirty)
	})

	n.It("marks pages used and dirty", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})
		as := loaded(t, env, "prog")

		pte := &as.PageTable()[2]
		require.False(t, pte.Use)
		require.False(t, pte.Dirty)

		_, exc := as.Translate(2*testPageSize, true)
		require.Equal(t, machine.NoException, exc)

		require.True(t, pte.Use)
		require.True(t, pte.Dirty)
	})

	n.It("reports a corrupt frame number as a bus error", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})
		as := loaded(t, env, "prog")

		pte := &as.PageTable()[0]
		saved := pte.PhysicalPage
		pte.PhysicalPage = testFrames

		_, exc := as.Translate(0, false)
		require.Equal(t, machine.BusErrorException, exc)

		pte.PhysicalPage = saved
	})

	n.It("reads and writes through the page table", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})
		as := loaded(t, env, "prog")

		require.Equal(t, machine.NoException, as.WriteMem(testPageSize+8, 4, 0xcafef00d))

		v, exc := as.ReadMem(testPageSize+8, 4)
		require.Equal(t, machine.NoException, exc)
		require.Equal(t, uint32(0xcafef00d), v)

		v, exc = as.ReadMem(testPageSize+8, 2)
		require.Equal(t, machine.NoException, exc)
		require.Equal(t, uint32(0xf00d), v)

		_, exc = as.ReadMem(testPageSize+9, 4)
		require.Equal(t, machine.AddressErrorException, exc)
	})

	n.Meow()
}

type recordCPU struct {
	regs      [machine.NumTotalRegs]int32
	table     []machine.TranslationEntry
	tableSize int
}

func (r *recordCPU) Run(m *machine.Machine) {
	for i := range r.regs {
		r.regs[i] = m.ReadRegister(i)
	}

	r.table, r.tableSize = m.PageTable()
}

func TestAddressSpaceLifecycle(t *testing.T) {
	n := neko.Modern(t)

	image := (&loader.Image{Code: pattern(300, 1), WithReadOnlyData: true}).Bytes()

	n.It("starts a program at address zero with the stack at the top", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})
		as := loaded(t, env, "prog")

		cpu := &recordCPU{}
		env.Machine.SetCPU(cpu)
		env.Machine.WriteRegister(5, 99)

		th := threads.NewRunningThread("user")

		require.Panics(t, func() {
			as.Execute(th)
		})

		require.Same(t, as, th.Space)

		require.Equal(t, int32(0), cpu.regs[machine.PCReg])
		require.Equal(t, int32(4), cpu.regs[machine.NextPCReg])
		require.Equal(t, int32(as.NumPages()*testPageSize-16), cpu.regs[machine.StackReg])
		require.Equal(t, int32(0), cpu.regs[5])

		require.Equal(t, as.NumPages(), cpu.tableSize)
		require.Equal(t, as.PageTable(), cpu.table)
	})

	n.It("never shares frames between live spaces and frees them on release", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})

		a := loaded(t, env, "prog")
		b := loaded(t, env, "prog")

		seen := map[int]bool{}
		for _, as := range []*AddressSpace{a, b} {
			for _, pte := range as.PageTable() {
				require.False(t, seen[pte.PhysicalPage], "frame %d mapped twice", pte.PhysicalPage)
				seen[pte.PhysicalPage] = true
			}
		}

		require.Equal(t, a.NumPages()+b.NumPages(), env.Frames.InUse())

		a.Release()
		require.Equal(t, b.NumPages(), env.Frames.InUse())
		require.Nil(t, a.PageTable())

		b.Release()
		require.Equal(t, 0, env.Frames.InUse())
	})

	n.It("installs its page table on restore", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})

		a := loaded(t, env, "prog")
		b := loaded(t, env, "prog")

		a.RestoreState()
		_, size := env.Machine.PageTable()
		require.Equal(t, a.NumPages(), size)

		b.SaveState()
		b.RestoreState()
		table, _ := env.Machine.PageTable()
		require.Equal(t, b.PageTable(), table)
	})

	n.It("dumps its page table", func(t *testing.T) {
		env, _ := newEnv(t, fs.MapFS{"prog": image})
		as := loaded(t, env, "prog")

		var buf bytes.Buffer
		as.Dump(&buf)

		require.Contains(t, buf.String(), "PhysicalPage")
	})

	n.Meow()
}
