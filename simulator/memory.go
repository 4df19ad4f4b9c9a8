package simulator

// ConfigMemorySize is the HX870-class configuration EEPROM's total span.
const ConfigMemorySize = 0x8000

// ConfigMemory is the simulated device's 32KiB configuration EEPROM,
// addressed the same way cfgmem.Engine addresses the real thing.
type ConfigMemory struct {
	bytes [ConfigMemorySize]byte
}

// NewConfigMemory returns a memory image pre-filled with 0xFF, the erased
// flash state real hardware also starts from.
func NewConfigMemory() *ConfigMemory {
	m := &ConfigMemory{}
	for i := range m.bytes {
		m.bytes[i] = 0xFF
	}
	return m
}

// Read copies length bytes starting at offset.
func (m *ConfigMemory) Read(offset, length int) []byte {
	out := make([]byte, length)
	copy(out, m.bytes[offset:offset+length])
	return out
}

// Write stores data starting at offset.
func (m *ConfigMemory) Write(offset int, data []byte) {
	copy(m.bytes[offset:offset+len(data)], data)
}
