// Package cpu exposes the privileged x86 instructions used by the memory
// subsystem. The functions in this package fault if called in user-mode so
// callers keep them behind package-level function variables that tests can
// replace.
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// InterruptsEnabled returns true if the interrupt flag is set.
func InterruptsEnabled() bool

// Halt disables interrupts and stops instruction execution.
func Halt()

// Pause hints the CPU that the caller is busy-waiting.
func Pause()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page directory to point to the specified physical
// address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page
// directory.
func ActivePDT() uintptr

// EnablePaging sets the paging bit in CR0. SwitchPDT must be called first.
func EnablePaging()

// DisableInterruptsSave disables interrupts and returns whether they were
// enabled before the call. The returned value should be passed to
// RestoreInterrupts once the critical section ends.
func DisableInterruptsSave() bool {
	enabled := InterruptsEnabled()
	DisableInterrupts()
	return enabled
}

// RestoreInterrupts re-enables interrupts if enabled is true.
func RestoreInterrupts(enabled bool) {
	if enabled {
		EnableInterrupts()
	}
}
