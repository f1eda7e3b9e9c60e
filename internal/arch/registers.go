package arch

// Registers is the simulated core register file.
type Registers struct {
	R   [13]uint32 // r0-r12
	LR  uint32
	PC  uint32
	PSR uint32
}

// Manual returns a copy of the callee-saved block r4-r11.
func (r *Registers) Manual() [manualWords]uint32 {
	var out [manualWords]uint32
	copy(out[:], r.R[4:12])
	return out
}
