package machine

import "fmt"

// TranslationEntry maps one virtual page to a physical frame.
type TranslationEntry struct {
	VirtualPage  int
	PhysicalPage int

	Valid    bool
	ReadOnly bool

	// Set by the translation on every access.
	Use bool

	// Set by the translation on every write.
	Dirty bool
}

type ExceptionType int

const (
	NoException ExceptionType = iota
	SyscallException
	PageFaultException
	ReadOnlyException
	BusErrorException
	AddressErrorException
	OverflowException
	IllegalInstrException

	NumExceptionTypes
)

func (e ExceptionType) String() string {
	switch e {
	case NoException:
		return "no-exception"
	case SyscallException:
		return "syscall"
	case PageFaultException:
		return "page-fault"
	case ReadOnlyException:
		return "read-only"
	case BusErrorException:
		return "bus-error"
	case AddressErrorException:
		return "address-error"
	case OverflowException:
		return "overflow"
	case IllegalInstrException:
		return "illegal-instruction"
	default:
		return fmt.Sprintf("exception(%d)", int(e))
	}
}
