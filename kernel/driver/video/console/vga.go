package console

import "gopher386/kernel/mm"

const (
	clearColor = Black
	clearChar  = byte(' ')

	// VgaTextBuffer is the physical address of the VGA text buffer.
	VgaTextBuffer = mm.PhysicalAddr(0xB8000)

	// VgaWidth and VgaHeight are the dimensions of the 80x25 text mode.
	VgaWidth  = 80
	VgaHeight = 25
)

// Vga implements a VGA-compatible text console. Each cell is a 16-bit word
// holding the character in the low byte and its color attribute in the high
// byte. The buffer is reached through the mm access hook so the console can
// point at the identity mapped buffer or at a remapped window.
type Vga struct {
	width  uint16
	height uint16

	fb uintptr
}

// Init sets up the console to use the text buffer at fbAddr.
func (cons *Vga) Init(width, height uint16, fbAddr uintptr) {
	cons.width = width
	cons.height = height
	cons.fb = fbAddr
}

func (cons *Vga) cell(offset uint16) *uint16 {
	return (*uint16)(mm.Ptr(cons.fb + uintptr(offset)<<1))
}

// Clear clears the specified rectangular region
func (cons *Vga) Clear(x, y, width, height uint16) {
	var (
		attr                 = uint16((clearColor << 4) | clearColor)
		clr                  = attr<<8 | uint16(clearChar)
		rowOffset, colOffset uint16
	)

	// clip rectangle
	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	rowOffset = (y * cons.width) + x
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			*cons.cell(colOffset) = clr
		}
	}
}

// Dimensions returns the console width and height in characters.
func (cons *Vga) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Scroll a particular number of lines to the specified direction.
func (cons *Vga) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	var i uint16
	offset := lines * cons.width

	switch dir {
	case Up:
		for ; i < (cons.height-lines)*cons.width; i++ {
			*cons.cell(i) = *cons.cell(i + offset)
		}
	case Down:
		for i = cons.height*cons.width - 1; i >= lines*cons.width; i-- {
			*cons.cell(i) = *cons.cell(i - offset)
		}
	}
}

// Write a char to the specified location.
func (cons *Vga) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	*cons.cell((y * cons.width) + x) = (uint16(attr) << 8) | uint16(ch)
}
