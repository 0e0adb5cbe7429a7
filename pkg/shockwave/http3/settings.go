package http3

// HTTP/3 SETTINGS identifiers (RFC 9114 Section 7.2.4.1).
const (
	SettingQPackMaxTableCapacity uint64 = 0x01
	SettingMaxFieldSectionSize   uint64 = 0x06
	SettingQPackBlockedStreams   uint64 = 0x07
	SettingEnableConnectProtocol uint64 = 0x08
	SettingH3Datagram            uint64 = 0x33
)

// Setting is a single id/value pair carried in a SETTINGS frame.
type Setting struct {
	ID    uint64
	Value uint64
}

// SettingsFrame is the decoded form of a SETTINGS frame (type 0x04).
type SettingsFrame struct {
	Settings []Setting
}

func (f *SettingsFrame) appendTo(buf []byte) []byte {
	length := uint64(0)
	for _, s := range f.Settings {
		length += varIntLen(s.ID) + varIntLen(s.Value)
	}

	buf = appendVarInt(buf, uint64(frameTypeSettings))
	buf = appendVarInt(buf, length)
	for _, s := range f.Settings {
		buf = appendVarInt(buf, s.ID)
		buf = appendVarInt(buf, s.Value)
	}
	return buf
}

// Get returns the value of a setting by id.
func (f *SettingsFrame) Get(id uint64) (uint64, bool) {
	for _, s := range f.Settings {
		if s.ID == id {
			return s.Value, true
		}
	}
	return 0, false
}

// DefaultSettings returns the SETTINGS this core advertises to peers.
func DefaultSettings() *SettingsFrame {
	return &SettingsFrame{
		Settings: []Setting{
			{ID: SettingQPackMaxTableCapacity, Value: 4096},
			{ID: SettingMaxFieldSectionSize, Value: 16 << 20},
			{ID: SettingQPackBlockedStreams, Value: 100},
		},
	}
}

func parseSettingsPayload(payload []byte) (*SettingsFrame, error) {
	var settings []Setting
	for len(payload) > 0 {
		id, n, err := readVarInt(payload)
		if err != nil {
			return nil, err
		}
		payload = payload[n:]

		value, n, err := readVarInt(payload)
		if err != nil {
			return nil, err
		}
		payload = payload[n:]

		settings = append(settings, Setting{ID: id, Value: value})
	}
	return &SettingsFrame{Settings: settings}, nil
}
