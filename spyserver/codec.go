package spyserver

import "encoding/binary"

// encodeCommand frames a CommandHeader{cmd, len(args)} followed by args into
// a single contiguous write buffer.
func encodeCommand(cmd uint32, args []byte) []byte {
	buf := make([]byte, commandHeaderSize+len(args))
	binary.LittleEndian.PutUint32(buf[0:4], cmd)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(args)))
	copy(buf[commandHeaderSize:], args)
	return buf
}

// encodeHello packs the HELLO command body: protocol version followed by
// the client's software identifier string.
func encodeHello() []byte {
	args := make([]byte, 4+len(SoftwareID))
	binary.LittleEndian.PutUint32(args[0:4], uint32(ProtocolVersion))
	copy(args[4:], SoftwareID)
	return encodeCommand(cmdHello, args)
}

// encodeSetSetting packs settingType followed by the u32 params as a
// SET_SETTING command body.
func encodeSetSetting(settingType uint32, params []uint32) []byte {
	args := make([]byte, 4+4*len(params))
	binary.LittleEndian.PutUint32(args[0:4], settingType)
	for i, p := range params {
		binary.LittleEndian.PutUint32(args[4+4*i:8+4*i], p)
	}
	return encodeCommand(cmdSetSetting, args)
}

func decodeDeviceInfo(body []byte) (DeviceInfo, bool) {
	const size = 12 * 4
	if len(body) < size {
		return DeviceInfo{}, false
	}
	return DeviceInfo{
		DeviceType:           binary.LittleEndian.Uint32(body[0:4]),
		DeviceSerial:         binary.LittleEndian.Uint32(body[4:8]),
		MaximumSampleRate:    binary.LittleEndian.Uint32(body[8:12]),
		MaximumBandwidth:     binary.LittleEndian.Uint32(body[12:16]),
		DecimationStageCount: binary.LittleEndian.Uint32(body[16:20]),
		GainStageCount:       binary.LittleEndian.Uint32(body[20:24]),
		MaximumGainIndex:     binary.LittleEndian.Uint32(body[24:28]),
		MinimumFrequency:     binary.LittleEndian.Uint32(body[28:32]),
		MaximumFrequency:     binary.LittleEndian.Uint32(body[32:36]),
		Resolution:           binary.LittleEndian.Uint32(body[36:40]),
		MinimumIQDecimation:  binary.LittleEndian.Uint32(body[40:44]),
		ForcedIQFormat:       binary.LittleEndian.Uint32(body[44:48]),
	}, true
}

func decodeClientSync(body []byte) (clientSync, bool) {
	const size = 9 * 4
	if len(body) < size {
		return clientSync{}, false
	}
	return clientSync{
		CanControl:                binary.LittleEndian.Uint32(body[0:4]),
		Gain:                      binary.LittleEndian.Uint32(body[4:8]),
		DeviceCenterFrequency:     binary.LittleEndian.Uint32(body[8:12]),
		IQCenterFrequency:         binary.LittleEndian.Uint32(body[12:16]),
		FFTCenterFrequency:        binary.LittleEndian.Uint32(body[16:20]),
		MinimumIQCenterFrequency:  binary.LittleEndian.Uint32(body[20:24]),
		MaximumIQCenterFrequency:  binary.LittleEndian.Uint32(body[24:28]),
		MinimumFFTCenterFrequency: binary.LittleEndian.Uint32(body[28:32]),
		MaximumFFTCenterFrequency: binary.LittleEndian.Uint32(body[32:36]),
	}, true
}

// buildSampleRateTable derives the ordered (rate, decimation stage) table
// from DeviceInfo: one entry for every stage in
// [MinimumIQDecimation, DecimationStageCount] inclusive, sorted ascending
// by rate.
func buildSampleRateTable(info DeviceInfo) []SampleRate {
	if info.DecimationStageCount < info.MinimumIQDecimation {
		return nil
	}
	n := info.DecimationStageCount - info.MinimumIQDecimation + 1
	table := make([]SampleRate, 0, n)
	for i := info.MinimumIQDecimation; i <= info.DecimationStageCount; i++ {
		table = append(table, SampleRate{
			RateHz:          info.MaximumSampleRate >> i,
			DecimationStage: i,
		})
	}
	// Insertion sort: n is the device's decimation stage count, always a
	// small constant (single digits in practice), so this is cheap and
	// keeps the table's stage order stable for equal rates.
	for i := 1; i < len(table); i++ {
		for j := i; j > 0 && table[j].RateHz < table[j-1].RateHz; j-- {
			table[j], table[j-1] = table[j-1], table[j]
		}
	}
	return table
}
