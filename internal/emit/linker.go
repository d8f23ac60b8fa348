package emit

import (
	"fmt"
	"strings"
)

// LinkerConfig generates an ld65 linker configuration: the 16-byte iNES
// HEADER, the MMC1's switchable 16 KiB PRG banks (when the ROM needs
// more than the 32 KiB window), a fixed final window holding CODE and
// RODATA, the VECTORS region at $FFFA-$FFFF, and the zero page.
func LinkerConfig(prgBanks int) string {
	var b strings.Builder

	// With only two banks the whole 32 KiB window is fixed; with more,
	// the switchable banks sit at $8000 and the fixed final bank at
	// $C000, MMC1's PRG mode 3 layout.
	prgStart, prgSize := 0x8000, 0x7FFA
	if prgBanks > 2 {
		prgStart, prgSize = 0xC000, 0x3FFA
	}

	b.WriteString("MEMORY {\n")
	b.WriteString("    ZP:      start = $0000, size = $0100;\n")
	b.WriteString("    HEADER:  start = $0000, size = $0010, file = %O, fill = yes;\n")
	for i := 0; i < prgBanks-2; i++ {
		fmt.Fprintf(&b, "    BANK%d:   start = $8000, size = $4000, file = %%O, fill = yes;\n", i)
	}
	fmt.Fprintf(&b, "    PRG:     start = $%04X, size = $%04X, file = %%O, fill = yes;\n", prgStart, prgSize)
	b.WriteString("    VECTORS: start = $FFFA, size = $0006, file = %O, fill = yes;\n")
	b.WriteString("}\n\nSEGMENTS {\n")
	b.WriteString("    HEADER:   load = HEADER,  type = ro;\n")
	for i := 0; i < prgBanks-2; i++ {
		fmt.Fprintf(&b, "    BANK%d:    load = BANK%d,   type = ro, optional = yes;\n", i, i)
	}
	b.WriteString("    CODE:     load = PRG,     type = ro;\n")
	b.WriteString("    RODATA:   load = PRG,     type = ro, align = $100;\n")
	b.WriteString("    DPCM:     load = PRG,     type = ro, align = $40, optional = yes;\n")
	b.WriteString("    ZEROPAGE: load = ZP,      type = zp;\n")
	b.WriteString("    VECTORS:  load = VECTORS, type = ro;\n")
	b.WriteString("}\n")

	return b.String()
}
