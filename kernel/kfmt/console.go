package kfmt

import (
	"io"

	"gopher386/kernel/sync"
)

// console routes Printf output either to the attached sink or, before a sink
// exists, to a ring buffer.
type console struct {
	sink  io.Writer
	early ringBuffer
}

func (c *console) Write(p []byte) (int, error) {
	if c.sink == nil {
		return c.early.Write(p)
	}
	return c.sink.Write(p)
}

// output serializes Printf calls. It is only locked with interrupts masked.
var output sync.SpinMutex[console]

// SetOutputSink sets the target for calls to Printf to w and flushes any
// output accumulated in the early ring buffer to it. Passing nil detaches the
// current sink and resumes buffering.
func SetOutputSink(w io.Writer) {
	irq := sync.IRQSave()
	g := output.Lock()

	c := g.Value()
	c.sink = w
	if w != nil {
		c.early.WriteTo(w)
	}

	g.Unlock()
	sync.IRQRestore(irq)
}

// Printf formats according to the format specifier (see Fprintf) and writes
// to the active output sink. Printf does not allocate memory and can be
// called before the heap is initialized.
func Printf(format string, args ...any) {
	irq := sync.IRQSave()
	g := output.Lock()
	Fprintf(g.Value(), format, args...)
	g.Unlock()
	sync.IRQRestore(irq)
}
