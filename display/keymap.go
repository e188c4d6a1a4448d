package display

import "github.com/hajimehoshi/ebiten/v2"

// keyDef maps a host key to a set-1 PC scancode plus its plain and
// shifted ASCII, zero where the key has no character.
type keyDef struct {
	scancode uint8
	ascii    uint8
	shifted  uint8
}

// https://stanislavs.org/helppc/make_codes.html
var keymap = map[ebiten.Key]keyDef{
	ebiten.KeyEscape:       {0x01, 0x1B, 0x1B},
	ebiten.KeyDigit1:       {0x02, '1', '!'},
	ebiten.KeyDigit2:       {0x03, '2', '@'},
	ebiten.KeyDigit3:       {0x04, '3', '#'},
	ebiten.KeyDigit4:       {0x05, '4', '$'},
	ebiten.KeyDigit5:       {0x06, '5', '%'},
	ebiten.KeyDigit6:       {0x07, '6', '^'},
	ebiten.KeyDigit7:       {0x08, '7', '&'},
	ebiten.KeyDigit8:       {0x09, '8', '*'},
	ebiten.KeyDigit9:       {0x0A, '9', '('},
	ebiten.KeyDigit0:       {0x0B, '0', ')'},
	ebiten.KeyMinus:        {0x0C, '-', '_'},
	ebiten.KeyEqual:        {0x0D, '=', '+'},
	ebiten.KeyBackspace:    {0x0E, 0x08, 0x08},
	ebiten.KeyTab:          {0x0F, 0x09, 0x09},
	ebiten.KeyQ:            {0x10, 'q', 'Q'},
	ebiten.KeyW:            {0x11, 'w', 'W'},
	ebiten.KeyE:            {0x12, 'e', 'E'},
	ebiten.KeyR:            {0x13, 'r', 'R'},
	ebiten.KeyT:            {0x14, 't', 'T'},
	ebiten.KeyY:            {0x15, 'y', 'Y'},
	ebiten.KeyU:            {0x16, 'u', 'U'},
	ebiten.KeyI:            {0x17, 'i', 'I'},
	ebiten.KeyO:            {0x18, 'o', 'O'},
	ebiten.KeyP:            {0x19, 'p', 'P'},
	ebiten.KeyBracketLeft:  {0x1A, '[', '{'},
	ebiten.KeyBracketRight: {0x1B, ']', '}'},
	ebiten.KeyEnter:        {0x1C, 0x0D, 0x0D},
	ebiten.KeyA:            {0x1E, 'a', 'A'},
	ebiten.KeyS:            {0x1F, 's', 'S'},
	ebiten.KeyD:            {0x20, 'd', 'D'},
	ebiten.KeyF:            {0x21, 'f', 'F'},
	ebiten.KeyG:            {0x22, 'g', 'G'},
	ebiten.KeyH:            {0x23, 'h', 'H'},
	ebiten.KeyJ:            {0x24, 'j', 'J'},
	ebiten.KeyK:            {0x25, 'k', 'K'},
	ebiten.KeyL:            {0x26, 'l', 'L'},
	ebiten.KeySemicolon:    {0x27, ';', ':'},
	ebiten.KeyQuote:        {0x28, '\'', '"'},
	ebiten.KeyBackquote:    {0x29, '`', '~'},
	ebiten.KeyBackslash:    {0x2B, '\\', '|'},
	ebiten.KeyZ:            {0x2C, 'z', 'Z'},
	ebiten.KeyX:            {0x2D, 'x', 'X'},
	ebiten.KeyC:            {0x2E, 'c', 'C'},
	ebiten.KeyV:            {0x2F, 'v', 'V'},
	ebiten.KeyB:            {0x30, 'b', 'B'},
	ebiten.KeyN:            {0x31, 'n', 'N'},
	ebiten.KeyM:            {0x32, 'm', 'M'},
	ebiten.KeyComma:        {0x33, ',', '<'},
	ebiten.KeyPeriod:       {0x34, '.', '>'},
	ebiten.KeySlash:        {0x35, '/', '?'},
	ebiten.KeySpace:        {0x39, ' ', ' '},
	ebiten.KeyF1:           {0x3B, 0, 0},
	ebiten.KeyF2:           {0x3C, 0, 0},
	ebiten.KeyF3:           {0x3D, 0, 0},
	ebiten.KeyF4:           {0x3E, 0, 0},
	ebiten.KeyF5:           {0x3F, 0, 0},
	ebiten.KeyF6:           {0x40, 0, 0},
	ebiten.KeyF7:           {0x41, 0, 0},
	ebiten.KeyF8:           {0x42, 0, 0},
	ebiten.KeyF9:           {0x43, 0, 0},
	ebiten.KeyF10:          {0x44, 0, 0},
	ebiten.KeyArrowUp:      {0x48, 0, 0},
	ebiten.KeyArrowLeft:    {0x4B, 0, 0},
	ebiten.KeyArrowRight:   {0x4D, 0, 0},
	ebiten.KeyArrowDown:    {0x50, 0, 0},
}

// translate resolves a host key press to the (scancode, ascii) pair
// the BIOS buffer stores.
func translate(k ebiten.Key, shifted bool) (scancode, ascii uint8, ok bool) {
	def, ok := keymap[k]
	if !ok {
		return 0, 0, false
	}
	ascii = def.ascii
	if shifted {
		ascii = def.shifted
	}

	return def.scancode, ascii, true
}

// asciiScancodes is the reverse mapping the terminal backend uses:
// it only sees characters, so shifted and plain forms share the
// scancode of the physical key.
var asciiScancodes = map[uint8]uint8{}

func init() {
	for _, def := range keymap {
		if def.ascii != 0 {
			asciiScancodes[def.ascii] = def.scancode
		}
		if def.shifted != 0 {
			asciiScancodes[def.shifted] = def.scancode
		}
	}
}

// scancodeFor guesses the scancode behind a plain character; zero
// when the character has no obvious key.
func scancodeFor(ascii uint8) uint8 {
	return asciiScancodes[ascii]
}
