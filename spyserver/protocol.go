// Package spyserver implements a client for the SpyServer SDR streaming
// protocol: a framed little-endian TCP protocol that negotiates device
// capabilities, accepts tuning/gain/decimation commands, and streams IQ
// samples and FFT power snapshots back to the client.
package spyserver

import "time"

// SoftwareID identifies this client to the server during the hello exchange.
var SoftwareID = "spyserver-client 1.0"

// ProtocolVersion is the compiled-in protocol version. Only the major/minor
// (top two bytes) are checked against the server's advertised version; the
// low 16 bits are a build number that does not gate compatibility.
const ProtocolVersion = (2 << 24) | (0 << 16) | 1558

// MaxMessageBodySize bounds the body_size field of an incoming MessageHeader.
// A server advertising more is treated as buggy or hostile.
const MaxMessageBodySize = 1 << 20

// FIFO and FFT defaults.
const (
	DefaultRingCapacity = 10 * 1024 * 1024
	DefaultFFTBins      = 2000
)

// CommandSendGrace is the pause after writing a command frame, giving the
// server time to apply the setting before a subsequent command races it.
const CommandSendGrace = 100 * time.Millisecond

// HandshakeTimeout bounds how long the constructor waits for both
// DEVICE_INFO and CLIENT_SYNC after the hello is sent.
const HandshakeTimeout = time.Second

const handshakePollInterval = time.Millisecond

// DialTimeout bounds the initial TCP connect.
const DialTimeout = 5 * time.Second

// Default FFT display parameters, pushed during the initial handshake.
const (
	DefaultFFTDbOffset = 0
	DefaultFFTDbRange  = 127
)

// Device types carried in DeviceInfo.DeviceType.
const (
	DeviceInvalid   = 0
	DeviceAirspyOne = 1
	DeviceAirspyHF  = 2
	DeviceRTLSDR    = 3
)

// DeviceName maps a device type to a human-readable name.
var DeviceName = map[uint32]string{
	DeviceInvalid:   "Invalid Device",
	DeviceAirspyOne: "Airspy Mini / R2",
	DeviceAirspyHF:  "Airspy HF / HF+",
	DeviceRTLSDR:    "RTLSDR",
}

// Command types (client -> server).
const (
	cmdHello      = 0
	cmdGetSetting = 1
	cmdSetSetting = 2
	cmdPing       = 3
)

// Setting types, sent as the first u32 of a SET_SETTING command body.
const (
	SettingStreamingMode    = 0
	SettingStreamingEnabled = 1
	SettingGain             = 2

	SettingIQFormat     = 100
	SettingIQFrequency  = 101
	SettingIQDecimation = 102
	SettingIQDigitalGain = 103

	SettingFFTFormat        = 200
	SettingFFTFrequency     = 201
	SettingFFTDecimation    = 202
	SettingFFTDbOffset      = 203
	SettingFFTDbRange       = 204
	SettingFFTDisplayPixels = 205
)

// Stream type bits, OR'd together to form a streaming mode.
const (
	StreamTypeStatus = 0
	StreamTypeIQ     = 1
	StreamTypeAF     = 2
	StreamTypeFFT    = 4
)

// Streaming modes, as pushed via SettingStreamingMode.
const (
	StreamModeIQOnly  = StreamTypeIQ
	StreamModeFFTOnly = StreamTypeFFT
	StreamModeFFTIQ   = StreamTypeFFT | StreamTypeIQ
)

// IQ sample wire formats, as pushed via SettingIQFormat / SettingFFTFormat.
const (
	StreamFormatUint8 = 1
	StreamFormatInt16 = 2
	StreamFormatFloat = 4
)

// Message types (server -> client), carried in MessageHeader.MessageType.
const (
	msgTypeDeviceInfo  = 0
	msgTypeClientSync  = 1
	msgTypePong        = 2
	msgTypeReadSetting = 3

	msgTypeUint8IQ = 100
	msgTypeInt16IQ = 101
	msgTypeFloatIQ = 103

	msgTypeUint8FFT = 301
)

// InvalidValue is returned by control methods when the requested value is
// not supported by the connected device.
const InvalidValue = 0xFFFFFFFF

// DigitalGainScale converts the caller's fractional digital gain into the
// server's 32-bit fixed-point representation.
const DigitalGainScale = 0xFFFFFFFF

// messageHeaderSize is the wire size of MessageHeader: five little-endian
// u32 fields.
const messageHeaderSize = 20

// commandHeaderSize is the wire size of CommandHeader: two little-endian
// u32 fields.
const commandHeaderSize = 8

// messageHeader is the decoded form of a server->client frame header.
type messageHeader struct {
	ProtocolID     uint32
	MessageType    uint32
	StreamType     uint32
	SequenceNumber uint32
	BodySize       uint32
}

// DeviceInfo describes the capabilities of the device attached to the
// server, as reported in the DEVICE_INFO message.
type DeviceInfo struct {
	DeviceType           uint32
	DeviceSerial         uint32
	MaximumSampleRate    uint32
	MaximumBandwidth     uint32
	DecimationStageCount uint32
	GainStageCount       uint32
	MaximumGainIndex     uint32
	MinimumFrequency     uint32
	MaximumFrequency     uint32
	Resolution           uint32
	MinimumIQDecimation  uint32
	ForcedIQFormat       uint32
}

// clientSync is the decoded form of the CLIENT_SYNC message.
type clientSync struct {
	CanControl                uint32
	Gain                      uint32
	DeviceCenterFrequency     uint32
	IQCenterFrequency         uint32
	FFTCenterFrequency        uint32
	MinimumIQCenterFrequency  uint32
	MaximumIQCenterFrequency  uint32
	MinimumFFTCenterFrequency uint32
	MaximumFFTCenterFrequency uint32
}

// SampleRate is one entry of the sample-rate table built from DeviceInfo at
// handshake: the sample rate achievable at a given IQ decimation stage.
type SampleRate struct {
	RateHz          uint32
	DecimationStage uint32
}

// ComplexInt16 is one 16-bit signed IQ sample pair.
type ComplexInt16 struct {
	Real int16
	Imag int16
}

// ComplexUint8 is one 8-bit unsigned IQ sample pair. The value 127
// represents zero amplitude.
type ComplexUint8 struct {
	Real uint8
	Imag uint8
}
