package arch

import "fmt"

// Frame layout, low to high address:
//
//	[0..7]   r4-r11, saved by the switch primitive
//	[8]      designator
//	[9..16]  r0-r3, r12, lr, pc, xpsr, stacked by exception entry
const (
	manualWords   = 8
	hardwareWords = 8

	// FrameWords is the size of a saved register image.
	FrameWords = manualWords + 1 + hardwareWords
)

// Word offsets inside a frame.
const (
	offDesignator = manualWords
	offR0         = manualWords + 1
	offR12        = offR0 + 4
	offLR         = offR0 + 5
	offPC         = offR0 + 6
	offPSR        = offR0 + 7
)

// PSRThumb is the xPSR execution-state bit. Exception return into a frame
// without it faults.
const PSRThumb uint32 = 0x01000000

// Designator records how a saved frame has to be entered.
type Designator uint32

const (
	// ReturnDirect frames have never been entered: the switch branches
	// straight into the pc slot without an exception return.
	ReturnDirect Designator = 0x00000000

	ReturnHandlerMSP Designator = 0xFFFFFFF1
	ReturnThreadMSP  Designator = 0xFFFFFFF9
	ReturnThreadPSP  Designator = 0xFFFFFFFD
)

func (d Designator) String() string {
	switch d {
	case ReturnDirect:
		return "direct"
	case ReturnHandlerMSP:
		return "handler/msp"
	case ReturnThreadMSP:
		return "thread/msp"
	case ReturnThreadPSP:
		return "thread/psp"
	default:
		return fmt.Sprintf("designator(%#08x)", uint32(d))
	}
}

// SynthesizeInitialImage writes a first-activation frame at the top of stack
// and returns the pointer to store in the task's control block.
func SynthesizeInitialImage(stack *Stack, entry uint32) StackPointer {
	sp := stack.Top() - FrameWords
	f := stack.words[sp : sp+FrameWords]
	for i := range f {
		f[i] = 0
	}
	f[offDesignator] = uint32(ReturnDirect)
	f[offPC] = entry
	f[offPSR] = PSRThumb
	return sp
}

// FrameDesignator reads the designator of the frame saved at sp.
func FrameDesignator(stack *Stack, sp StackPointer) Designator {
	return Designator(stack.words[int(sp)+offDesignator])
}

// FramePC reads the pc slot of the frame saved at sp.
func FramePC(stack *Stack, sp StackPointer) uint32 {
	return stack.words[int(sp)+offPC]
}

// pushManual saves r4-r11 and the designator below sp.
func pushManual(stack *Stack, sp StackPointer, regs *Registers, d Designator) StackPointer {
	sp -= manualWords + 1
	copy(stack.words[sp:sp+manualWords], regs.R[4:12])
	stack.words[int(sp)+offDesignator] = uint32(d)
	return sp
}

// popManual restores r4-r11 from sp and returns the designator that followed.
func popManual(stack *Stack, sp StackPointer, regs *Registers) (StackPointer, Designator) {
	copy(regs.R[4:12], stack.words[sp:sp+manualWords])
	d := Designator(stack.words[int(sp)+offDesignator])
	return sp + manualWords + 1, d
}

// stackHardware is what exception entry does to the process stack.
func stackHardware(stack *Stack, sp StackPointer, regs *Registers) StackPointer {
	sp -= hardwareWords
	f := stack.words[sp : sp+hardwareWords]
	copy(f[0:4], regs.R[0:4])
	f[offR12-offR0] = regs.R[12]
	f[offLR-offR0] = regs.LR
	f[offPC-offR0] = regs.PC
	f[offPSR-offR0] = regs.PSR
	return sp
}

// unstackHardware is what exception return does to the process stack.
func unstackHardware(stack *Stack, sp StackPointer, regs *Registers) StackPointer {
	f := stack.words[sp : sp+hardwareWords]
	copy(regs.R[0:4], f[0:4])
	regs.R[12] = f[offR12-offR0]
	regs.LR = f[offLR-offR0]
	regs.PC = f[offPC-offR0]
	regs.PSR = f[offPSR-offR0]
	return sp + hardwareWords
}
