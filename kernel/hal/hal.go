package hal

import (
	"gopher386/kernel/driver/tty"
	"gopher386/kernel/driver/video/console"
	"gopher386/kernel/kfmt"
)

var (
	vgaConsole console.Vga

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal attaches the active terminal to the VGA text buffer at fbAddr
// and makes it the output sink for kfmt. Any output buffered before this
// call is flushed to the terminal.
func InitTerminal(fbAddr uintptr) {
	vgaConsole.Init(console.VgaWidth, console.VgaHeight, fbAddr)
	ActiveTerminal.AttachTo(&vgaConsole)
	ActiveTerminal.Clear()

	kfmt.SetOutputSink(ActiveTerminal)
}
