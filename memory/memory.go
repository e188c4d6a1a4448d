// Package memory implements the flat 1MB guest address space shared
// by the CPU, BIOS and display. All access goes through the
// accessors, which mask every address to 20 bits, so the address
// space wraps rather than faults.
package memory

const (
	MEM_SIZE  = 1 << 20 // 1MB, the real mode limit
	ADDR_MASK = MEM_SIZE - 1

	PAGE_SIZE = 4096
	NUM_PAGES = MEM_SIZE / PAGE_SIZE
)

type Memory struct {
	ram      []uint8
	readonly [NUM_PAGES]bool
}

func New() *Memory {
	return &Memory{ram: make([]uint8, MEM_SIZE)}
}

// Read8 returns the byte at the masked linear address.
func (m *Memory) Read8(addr uint32) uint8 {
	return m.ram[addr&ADDR_MASK]
}

// Write8 stores val at the masked linear address. Writes to a page
// marked read-only are silently discarded; that is how ROM behaves.
func (m *Memory) Write8(addr uint32, val uint8) {
	addr &= ADDR_MASK
	if m.readonly[addr/PAGE_SIZE] {
		return
	}
	m.ram[addr] = val
}

// Read16 returns the little-endian word at addr. The two bytes are
// masked independently, so a word read at 0xFFFFF wraps to 0x00000
// for its high byte.
func (m *Memory) Read16(addr uint32) uint16 {
	lsb := uint16(m.Read8(addr))
	msb := uint16(m.Read8(addr + 1))

	return (msb << 8) | lsb
}

// Write16 stores val at addr, low byte first.
func (m *Memory) Write16(addr uint32, val uint16) {
	m.Write8(addr, uint8(val&0x00FF))
	m.Write8(addr+1, uint8(val>>8))
}

func (m *Memory) Read32(addr uint32) uint32 {
	lsw := uint32(m.Read16(addr))
	msw := uint32(m.Read16(addr + 2))

	return (msw << 16) | lsw
}

func (m *Memory) Write32(addr uint32, val uint32) {
	m.Write16(addr, uint16(val&0xFFFF))
	m.Write16(addr+2, uint16(val>>16))
}

// Load block copies src into memory starting at addr, one byte at a
// time so each address masks and read-only pages are honored.
func (m *Memory) Load(addr uint32, src []uint8) {
	for i, b := range src {
		m.Write8(addr+uint32(i), b)
	}
}

// Dump returns a copy of n bytes starting at addr.
func (m *Memory) Dump(addr uint32, n int) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = m.Read8(addr + uint32(i))
	}

	return out
}

// Slice returns a view of the backing store from the masked addr to
// the end of memory. Callers must not assume the view wraps; it ends
// at the 1MB boundary. Writes through the view bypass the read-only
// page check.
func (m *Memory) Slice(addr uint32) []uint8 {
	return m.ram[addr&ADDR_MASK:]
}

// SetReadOnly marks or clears the read-only bit for every page
// overlapping [addr, addr+n).
func (m *Memory) SetReadOnly(addr uint32, n uint32, ro bool) {
	if n == 0 {
		return
	}
	first := (addr & ADDR_MASK) / PAGE_SIZE
	last := ((addr + n - 1) & ADDR_MASK) / PAGE_SIZE
	for p := first; p <= last; p++ {
		m.readonly[p] = ro
	}
}

// ReadOnly reports whether the page containing addr is write
// protected.
func (m *Memory) ReadOnly(addr uint32) bool {
	return m.readonly[(addr&ADDR_MASK)/PAGE_SIZE]
}
