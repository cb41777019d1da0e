package xrd

import "fmt"

// PosBuffer is one element of a vector read: a destination buffer bound to
// a file offset. The buffer is borrowed from the caller and must stay alive
// until the read completes.
type PosBuffer struct {
	Offset int64
	Data   []byte
}

// Size returns the number of bytes the element covers.
func (p PosBuffer) Size() int64 {
	return int64(len(p.Data))
}

// End returns the file offset one past the element.
func (p PosBuffer) End() int64 {
	return p.Offset + p.Size()
}

// String converts the element for debug output.
func (p PosBuffer) String() string {
	return fmt.Sprintf("%d+%d", p.Offset, p.Size())
}

// SizeOf returns the total byte count covered by iolist.
func SizeOf(iolist []PosBuffer) (total int64) {
	for _, io := range iolist {
		total += io.Size()
	}
	return total
}
