package spyserver

import (
	"encoding/binary"
	"fmt"
)

// ID returns the session's correlation identifier, attached to every
// diagnostic log line it emits.
func (s *Session) ID() string { return s.id.String() }

// State returns the session's current lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// DeviceInfo returns the capabilities reported by the connected device.
func (s *Session) DeviceInfo() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceInfo
}

// SampleRates returns the sample-rate table built from DeviceInfo at
// handshake, ordered ascending by rate.
func (s *Session) SampleRates() []SampleRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SampleRate, len(s.sampleRates))
	copy(out, s.sampleRates)
	return out
}

// CanControl reports whether the server granted this client tuning
// control, as latched from CLIENT_SYNC.
func (s *Session) CanControl() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canControl
}

// Streaming reports whether Start has been called without a matching Stop.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// CenterFrequency returns the last committed IQ channel center frequency.
func (s *Session) CenterFrequency() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.centerFreq
}

// Gain returns the last committed LNA gain stage.
func (s *Session) Gain() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// GetSamplingInfo returns the device's maximum sample rate and decimation
// stage count, as reported in DEVICE_INFO.
func (s *Session) GetSamplingInfo() (maxRate, stageCount uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceInfo.MaximumSampleRate, s.deviceInfo.DecimationStageCount
}

// GetBandwidth returns the device's maximum bandwidth, as reported in
// DEVICE_INFO.
func (s *Session) GetBandwidth() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceInfo.MaximumBandwidth
}

// SetCenterFreq retunes both the IQ and FFT channels to hz. The server
// only accepts frequency settings while in STREAM_MODE_FFT_IQ, so the
// streaming mode is pushed to FFT_IQ for the duration of the retune and
// then restored to whatever mode the session was configured with.
func (s *Session) SetCenterFreq(hz uint32) (uint32, error) {
	s.mu.Lock()
	mode := s.streamingMode
	s.mu.Unlock()

	if err := s.setSetting(SettingStreamingMode, []uint32{StreamModeFFTIQ}); err != nil {
		return InvalidValue, err
	}
	if err := s.setSetting(SettingIQFrequency, []uint32{hz}); err != nil {
		return InvalidValue, err
	}
	if err := s.setSetting(SettingFFTFrequency, []uint32{hz}); err != nil {
		return InvalidValue, err
	}
	if err := s.setSetting(SettingStreamingMode, []uint32{mode}); err != nil {
		return InvalidValue, err
	}

	s.mu.Lock()
	s.centerFreq = hz
	s.displayCenterFreq = hz
	s.mu.Unlock()

	return hz, nil
}

// SetSampleRateByDecimationStage selects a sample rate from the table built
// at handshake by its decimation stage index, applying it to both the IQ
// and FFT channels.
func (s *Session) SetSampleRateByDecimationStage(stage uint32) error {
	s.mu.Lock()
	count := s.deviceInfo.DecimationStageCount
	pixels := s.displayPixels
	s.mu.Unlock()

	if stage > count {
		return fmt.Errorf("spyserver: decimation stage %d exceeds device maximum %d", stage, count)
	}

	if err := s.setSetting(SettingIQDecimation, []uint32{stage}); err != nil {
		return err
	}
	if err := s.setSetting(SettingFFTDecimation, []uint32{stage}); err != nil {
		return err
	}
	if err := s.setSetting(SettingFFTDisplayPixels, []uint32{pixels}); err != nil {
		return err
	}

	s.mu.Lock()
	s.decimationStage = stage
	s.displayDecimationStage = stage
	s.mu.Unlock()

	return nil
}

// SetGain sets the LNA gain stage. Passing "Digital" as channel instead
// sets the IQ digital gain, scaling value into the server's 32-bit
// fixed-point representation.
func (s *Session) SetGain(value uint32, channel ...string) (uint32, error) {
	if len(channel) > 0 && channel[0] == "Digital" {
		if err := s.setSetting(SettingIQDigitalGain, []uint32{value * DigitalGainScale}); err != nil {
			return InvalidValue, err
		}
		return value, nil
	}

	s.mu.Lock()
	canControl := s.canControl
	s.mu.Unlock()
	if !canControl {
		s.log.Warn("gain change requested but server reports no tuning control")
		return InvalidValue, fmt.Errorf("spyserver: device does not allow gain control")
	}

	if err := s.setSetting(SettingGain, []uint32{value}); err != nil {
		return InvalidValue, err
	}

	s.mu.Lock()
	s.gain = value
	s.mu.Unlock()

	return value, nil
}

// Start enables streaming.
func (s *Session) Start() error {
	s.mu.Lock()
	s.streaming = true
	s.state = stateStreaming
	s.mu.Unlock()
	return s.setSetting(SettingStreamingEnabled, []uint32{1})
}

// Stop disables streaming.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.streaming = false
	s.state = stateReady
	s.mu.Unlock()
	return s.setSetting(SettingStreamingEnabled, []uint32{0})
}

// GetIQDataUint8 pulls batch 8-bit IQ sample pairs into out, blocking until
// that many are available or the session terminates. It returns the number
// of samples actually delivered and whether the stream has ended.
func (s *Session) GetIQDataUint8(batch uint32, out []ComplexUint8) (uint32, bool, error) {
	if s.ring == nil {
		return 0, true, fmt.Errorf("spyserver: session was not configured for IQ consumption")
	}
	if uint32(len(out)) < batch {
		return 0, false, fmt.Errorf("spyserver: out buffer smaller than requested batch")
	}

	raw := make([]byte, batch*2)
	delivered, done := s.ring.read(batch, 1, raw)
	for i := uint32(0); i < delivered; i++ {
		out[i] = ComplexUint8{Real: raw[i*2], Imag: raw[i*2+1]}
	}
	if s.metrics != nil {
		s.metrics.AddSamplesDelivered(delivered)
	}
	return delivered, done, nil
}

// GetIQDataInt16 pulls batch 16-bit IQ sample pairs into out, blocking
// until that many are available or the session terminates. It returns the
// number of samples actually delivered and whether the stream has ended.
func (s *Session) GetIQDataInt16(batch uint32, out []ComplexInt16) (uint32, bool, error) {
	if s.ring == nil {
		return 0, true, fmt.Errorf("spyserver: session was not configured for IQ consumption")
	}
	if uint32(len(out)) < batch {
		return 0, false, fmt.Errorf("spyserver: out buffer smaller than requested batch")
	}

	raw := make([]byte, batch*4)
	delivered, done := s.ring.read(batch, 2, raw)
	for i := uint32(0); i < delivered; i++ {
		re := int16(binary.LittleEndian.Uint16(raw[i*4 : i*4+2]))
		im := int16(binary.LittleEndian.Uint16(raw[i*4+2 : i*4+4]))
		out[i] = ComplexInt16{Real: re, Imag: im}
	}
	if s.metrics != nil {
		s.metrics.AddSamplesDelivered(delivered)
	}
	return delivered, done, nil
}

// GetFFTData drains the FFT accumulator, blocking until at least one period
// has been integrated or the session terminates. The caller divides sums
// by periods to obtain the mean power per bin since the last drain.
func (s *Session) GetFFTData() (sums []uint32, periods uint32, done bool, err error) {
	if s.fft == nil {
		return nil, 0, true, fmt.Errorf("spyserver: session was not configured for FFT consumption")
	}
	sums, periods, done = s.fft.drain()
	return sums, periods, done, nil
}
