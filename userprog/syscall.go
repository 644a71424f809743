package userprog

// System call numbers. A user program puts the number in register 2 and
// its arguments in registers 4 through 7; the result comes back in 2.
const (
	SCHalt        = 0
	SCExit        = 1
	SCExec        = 2
	SCJoin        = 3
	SCThreadYield = 12
	SCPrintInt    = 16
	SCAdd         = 42
)

const (
	ResultReg = 2
	Arg1Reg   = 4
	Arg2Reg   = 5
	Arg3Reg   = 6
	Arg4Reg   = 7
)
