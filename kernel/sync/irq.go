package sync

var (
	irqSaveFn    = func() bool { return false }
	irqRestoreFn = func(bool) {}
)

// InstallIRQControl registers the functions used by IRQSave and IRQRestore.
// The kernel installs cpu.DisableInterruptsSave and cpu.RestoreInterrupts at
// boot; until then, and in hosted builds, masking is a no-op.
func InstallIRQControl(save func() bool, restore func(bool)) {
	irqSaveFn, irqRestoreFn = save, restore
}

// IRQSave masks interrupts on the current CPU and returns the previous
// interrupt state. Process-wide singletons that may be reached from an
// interrupt handler wrap their SpinMutex critical sections with
// IRQSave/IRQRestore.
func IRQSave() bool {
	return irqSaveFn()
}

// IRQRestore restores the interrupt state returned by IRQSave.
func IRQRestore(enabled bool) {
	irqRestoreFn(enabled)
}
