// Package op defines the opcodes and block kinds shared by code objects,
// frames and the evaluator that drives them.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Execution
	Nop         Code = 1
	Call        Code = 3
	ReturnValue Code = 4
	YieldValue  Code = 5

	// Jump
	JumpForward  Code = 10
	JumpAbsolute Code = 11

	// Load
	LoadFast   Code = 20
	LoadDeref  Code = 21
	LoadGlobal Code = 22
	LoadConst  Code = 23
	LoadName   Code = 24

	// Store
	StoreFast   Code = 30
	StoreDeref  Code = 31
	StoreGlobal Code = 32
	StoreName   Code = 33
	DeleteFast  Code = 34

	// Stack
	PopTop Code = 70

	// Blocks
	SetupLoop    Code = 140 // operand1=handler offset
	SetupExcept  Code = 141 // operand1=handler offset
	SetupFinally Code = 142 // operand1=handler offset
	SetupWith    Code = 143 // operand1=handler offset
	PopBlock     Code = 144
	PopExcept    Code = 145
	EndFinally   Code = 146
	BreakLoop    Code = 147
	Raise        Code = 148
)

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{BreakLoop, "BREAK_LOOP", 0},
		{Call, "CALL", 1},
		{DeleteFast, "DELETE_FAST", 1},
		{EndFinally, "END_FINALLY", 0},
		{JumpAbsolute, "JUMP_ABSOLUTE", 1},
		{JumpForward, "JUMP_FORWARD", 1},
		{LoadConst, "LOAD_CONST", 1},
		{LoadDeref, "LOAD_DEREF", 1},
		{LoadFast, "LOAD_FAST", 1},
		{LoadGlobal, "LOAD_GLOBAL", 1},
		{LoadName, "LOAD_NAME", 1},
		{Nop, "NOP", 0},
		{PopBlock, "POP_BLOCK", 0},
		{PopExcept, "POP_EXCEPT", 0},
		{PopTop, "POP_TOP", 0},
		{Raise, "RAISE", 1},
		{ReturnValue, "RETURN_VALUE", 0},
		{SetupExcept, "SETUP_EXCEPT", 1},
		{SetupFinally, "SETUP_FINALLY", 1},
		{SetupLoop, "SETUP_LOOP", 1},
		{SetupWith, "SETUP_WITH", 1},
		{StoreDeref, "STORE_DEREF", 1},
		{StoreFast, "STORE_FAST", 1},
		{StoreGlobal, "STORE_GLOBAL", 1},
		{StoreName, "STORE_NAME", 1},
		{YieldValue, "YIELD_VALUE", 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{Code: op}
	}
	return infos[op]
}

// BlockKind identifies the construct that pushed an entry onto a frame's
// block stack.
type BlockKind uint8

const (
	BlockLoop BlockKind = iota + 1
	BlockExcept
	BlockFinally
	BlockWith
	// BlockExceptHandler marks a handler that is currently running. Three
	// values describing the in-flight exception sit on the value stack above
	// its level.
	BlockExceptHandler
)

// String returns the name of the block kind, for example "loop".
func (k BlockKind) String() string {
	switch k {
	case BlockLoop:
		return "loop"
	case BlockExcept:
		return "except"
	case BlockFinally:
		return "finally"
	case BlockWith:
		return "with"
	case BlockExceptHandler:
		return "except_handler"
	default:
		return "invalid"
	}
}

// BlockKindFor returns the block kind pushed by a setup opcode.
func BlockKindFor(code Code) (BlockKind, bool) {
	switch code {
	case SetupLoop:
		return BlockLoop, true
	case SetupExcept:
		return BlockExcept, true
	case SetupFinally:
		return BlockFinally, true
	case SetupWith:
		return BlockWith, true
	default:
		return 0, false
	}
}
