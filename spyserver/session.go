package spyserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miweber67/spyserver-client/internal/diag"
)

// sessionState enumerates the lifecycle of a Session.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateGreeting
	stateAwaitingInfo
	stateAwaitingSync
	stateReady
	stateStreaming
	stateTerminated
)

func (s sessionState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateGreeting:
		return "greeting"
	case stateAwaitingInfo:
		return "awaiting_info"
	case stateAwaitingSync:
		return "awaiting_sync"
	case stateReady:
		return "ready"
	case stateStreaming:
		return "streaming"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// metricsSink is the subset of internal/metrics.Collector the session
// reports to. Kept as an interface so spyserver does not import metrics
// directly; a nil sink is always safe to call into.
type metricsSink interface {
	AddBytesReceived(n int)
	AddSamplesDelivered(n uint32)
	AddFFTPeriods(n uint32)
	AddDroppedBuffers(n uint32)
	AddRingOverflowBytes(n uint32)
}

// Options configures a Session at construction.
type Options struct {
	Address string

	WantIQ  bool
	WantFFT bool

	// SampleBits selects the wire format for IQ frames: 8 or 16. Defaults
	// to 16 when zero.
	SampleBits uint32

	// FFTBins is the display pixel count requested from the server.
	// Defaults to DefaultFFTBins when zero.
	FFTBins uint32

	// RingCapacity bounds the IQ ring buffer. Defaults to
	// DefaultRingCapacity when zero; values below MaxMessageBodySize are
	// raised to it so one IQ frame always fits.
	RingCapacity uint32

	Logger  diag.Logger
	Metrics metricsSink
}

// Session is a connected SpyServer client: it owns the TCP connection, the
// background receiver goroutine, and the IQ/FFT consumer-facing buffers.
// Construct one with Connect.
type Session struct {
	id      uuid.UUID
	address string
	log     diag.Logger
	metrics metricsSink

	conn transport
	wg   sync.WaitGroup

	sampleBits uint32

	mu                     sync.Mutex
	state                  sessionState
	deviceInfo             DeviceInfo
	sampleRates            []SampleRate
	streamingMode          uint32
	canControl             bool
	streaming              bool
	gain                   uint32
	centerFreq             uint32
	displayCenterFreq      uint32
	displayOffset          int32
	displayRange           int32
	displayPixels          uint32
	decimationStage        uint32
	displayDecimationStage uint32
	minTunableFreq         uint32
	maxTunableFreq         uint32
	gotDeviceInfo          bool
	gotSyncInfo            bool
	terminated             bool

	parser *frameParser
	ring   *ringBuffer
	fft    *fftAccumulator
}

// Connect dials address, completes the SpyServer handshake (HELLO ->
// DEVICE_INFO -> CLIENT_SYNC), and pushes the initial stream configuration.
// It fails if the device reports DeviceInvalid or the handshake does not
// complete within HandshakeTimeout.
func Connect(opts Options) (*Session, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("spyserver: Address is required")
	}

	conn, err := dial(opts.Address, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("spyserver: dial %s: %w", opts.Address, err)
	}

	s, err := connectOver(conn, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// connectOver runs the handshake over an already-established transport.
// Split out from Connect so tests can exercise the handshake and receiver
// goroutine over a net.Pipe() instead of a real socket.
func connectOver(conn transport, opts Options) (*Session, error) {
	sampleBits := opts.SampleBits
	if sampleBits == 0 {
		sampleBits = 16
	}
	if sampleBits != 8 && sampleBits != 16 {
		return nil, fmt.Errorf("spyserver: SampleBits must be 8 or 16, got %d", sampleBits)
	}

	fftBins := opts.FFTBins
	if fftBins == 0 {
		fftBins = DefaultFFTBins
	}
	ringCapacity := opts.RingCapacity
	if ringCapacity == 0 {
		ringCapacity = DefaultRingCapacity
	} else if ringCapacity < MaxMessageBodySize {
		ringCapacity = MaxMessageBodySize
	}

	logger := opts.Logger
	if logger == nil {
		logger = diag.Default()
	}
	id := uuid.New()
	logger = logger.With(diag.Field{Key: "session", Value: id.String()})

	mode := uint32(0)
	if opts.WantIQ {
		mode |= StreamTypeIQ
	}
	if opts.WantFFT {
		// Global-mode coupling: the server will not decouple FFT from IQ,
		// so an FFT-only caller still pays for full-rate IQ decimation.
		mode |= StreamTypeFFT | StreamTypeIQ
	}

	s := &Session{
		id:            id,
		address:       opts.Address,
		log:           logger,
		metrics:       opts.Metrics,
		sampleBits:    sampleBits,
		state:         stateGreeting,
		streamingMode: mode,
		displayOffset: DefaultFFTDbOffset,
		displayRange:  DefaultFFTDbRange,
		displayPixels: fftBins,
	}
	s.parser = newFrameParser(s)

	if opts.WantIQ {
		s.ring = newRingBuffer(ringCapacity, s.onRingOverflow)
	}
	if opts.WantFFT {
		s.fft = newFFTAccumulator(fftBins)
	}

	s.conn = conn

	if err := s.send(encodeHello()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("spyserver: sending hello: %w", err)
	}

	s.mu.Lock()
	s.state = stateAwaitingInfo
	s.mu.Unlock()

	s.wg.Add(1)
	go s.receiveLoop()

	s.log.Info("connected, awaiting device capability and synchronization info", diag.Field{Key: "address", Value: opts.Address})

	deadline := time.Now().Add(HandshakeTimeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		gotInfo := s.gotDeviceInfo
		gotSync := s.gotSyncInfo
		deviceType := s.deviceInfo.DeviceType
		s.mu.Unlock()

		if gotInfo {
			if deviceType == DeviceInvalid {
				s.Disconnect()
				return nil, fmt.Errorf("spyserver: server is up but no device is available")
			}
			if gotSync {
				s.onConnect()
				return s, nil
			}
		}
		time.Sleep(handshakePollInterval)
	}

	s.Disconnect()
	return nil, fmt.Errorf("spyserver: server didn't send the device capability and synchronization info")
}

// Disconnect terminates the session: it closes the transport, waits for the
// receiver goroutine to exit, and wakes any consumer blocked on the ring
// buffer or FFT accumulator.
func (s *Session) Disconnect() {
	s.mu.Lock()
	alreadyTerminated := s.terminated
	s.terminated = true
	s.state = stateTerminated
	s.mu.Unlock()

	if !alreadyTerminated {
		s.log.Info("disconnecting")
	}
	s.conn.Close()
	s.wg.Wait()
}

func (s *Session) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// cleanup runs once, from the receiver goroutine's exit path: it marks the
// session terminated and wakes any blocked consumer.
func (s *Session) cleanup() {
	s.mu.Lock()
	s.terminated = true
	s.streaming = false
	s.state = stateTerminated
	s.mu.Unlock()

	if s.ring != nil {
		s.ring.terminate()
	}
	if s.fft != nil {
		s.fft.terminate()
	}
}

// receiveLoop is the session's single long-lived goroutine: it reads raw
// bytes off the socket and feeds them to the frame parser. A panic from the
// decoder (a malformed header it cannot recover from) is caught here and
// converted into a logged termination rather than crashing the process.
func (s *Session) receiveLoop() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("receiver panicked, terminating session", diag.Field{Key: "panic", Value: r})
		}
		s.cleanup()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if !s.isTerminated() {
				s.log.Info("receiver read failed, closing session", diag.Field{Key: "error", Value: err})
			}
			return
		}
		if n == 0 {
			continue
		}
		if s.metrics != nil {
			s.metrics.AddBytesReceived(n)
		}

		if err := s.parser.feed(buf[:n]); err != nil {
			s.log.Error("fatal protocol error, closing session", diag.Field{Key: "error", Value: err})
			return
		}
	}
}

func (s *Session) send(frame []byte) error {
	if s.conn == nil {
		return fmt.Errorf("spyserver: not connected")
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("spyserver: write failed: %w", err)
	}
	time.Sleep(CommandSendGrace)
	return nil
}

func (s *Session) setSetting(settingType uint32, params []uint32) error {
	return s.send(encodeSetSetting(settingType, params))
}

// onConnect pushes the initial stream configuration once the handshake
// completes and builds the sample-rate table from the device's reported
// capabilities.
func (s *Session) onConnect() {
	s.mu.Lock()
	s.state = stateReady
	mode := s.streamingMode
	bits := s.sampleBits
	pixels := s.displayPixels
	offset := s.displayOffset
	dbRange := s.displayRange
	info := s.deviceInfo
	s.mu.Unlock()

	iqFormat := uint32(StreamFormatInt16)
	if bits == 8 {
		iqFormat = StreamFormatUint8
	}

	steps := []struct {
		setting uint32
		params  []uint32
	}{
		{SettingStreamingMode, []uint32{mode}},
		{SettingIQFormat, []uint32{iqFormat}},
		{SettingFFTFormat, []uint32{StreamFormatUint8}},
		{SettingFFTDisplayPixels, []uint32{pixels}},
		{SettingFFTDbOffset, []uint32{uint32(offset)}},
		{SettingFFTDbRange, []uint32{uint32(dbRange)}},
		{SettingFFTDecimation, []uint32{1}},
	}
	for _, step := range steps {
		if err := s.setSetting(step.setting, step.params); err != nil {
			s.log.Warn("initial setting push failed", diag.Field{Key: "setting", Value: step.setting}, diag.Field{Key: "error", Value: err})
		}
	}

	rates := buildSampleRateTable(info)
	s.mu.Lock()
	s.sampleRates = rates
	s.mu.Unlock()

	s.log.Info("handshake complete", diag.Field{Key: "device", Value: DeviceName[info.DeviceType]}, diag.Field{Key: "sample_rates", Value: len(rates)})
}

func (s *Session) onRingOverflow(dropped uint32) {
	if s.metrics != nil {
		s.metrics.AddRingOverflowBytes(dropped)
	}
	s.log.Warn("ring buffer overflow, oldest samples dropped", diag.Field{Key: "bytes", Value: dropped})
}

// onSequenceGap implements frameDispatcher.
func (s *Session) onSequenceGap(gap uint32) {
	if s.metrics != nil {
		s.metrics.AddDroppedBuffers(gap)
	}
	s.log.Warn("lost frames from server", diag.Field{Key: "count", Value: gap})
}

// handleMessage implements frameDispatcher.
func (s *Session) handleMessage(header messageHeader, body []byte) {
	switch header.MessageType {
	case msgTypeDeviceInfo:
		info, ok := decodeDeviceInfo(body)
		if !ok {
			s.log.Warn("short DEVICE_INFO body", diag.Field{Key: "size", Value: len(body)})
			return
		}
		s.mu.Lock()
		s.deviceInfo = info
		s.gotDeviceInfo = true
		s.state = stateAwaitingSync
		s.mu.Unlock()

	case msgTypeClientSync:
		sync, ok := decodeClientSync(body)
		if !ok {
			s.log.Warn("short CLIENT_SYNC body", diag.Field{Key: "size", Value: len(body)})
			return
		}
		s.mu.Lock()
		s.canControl = sync.CanControl != 0
		s.gain = sync.Gain
		s.centerFreq = sync.DeviceCenterFrequency
		s.displayCenterFreq = sync.FFTCenterFrequency
		if s.streamingMode == StreamModeFFTOnly || s.streamingMode == StreamModeFFTIQ {
			s.minTunableFreq = sync.MinimumFFTCenterFrequency
			s.maxTunableFreq = sync.MaximumFFTCenterFrequency
		} else {
			s.minTunableFreq = sync.MinimumIQCenterFrequency
			s.maxTunableFreq = sync.MaximumIQCenterFrequency
		}
		s.gotSyncInfo = true
		s.mu.Unlock()

	case msgTypeUint8IQ, msgTypeInt16IQ:
		if s.ring != nil {
			s.ring.write(body)
		}

	case msgTypeFloatIQ:
		// Recognized format; this client only consumes fixed-point IQ.

	case msgTypeUint8FFT:
		if s.fft != nil {
			s.fft.accumulate(body)
			if s.metrics != nil {
				s.metrics.AddFFTPeriods(1)
			}
		}

	default:
		s.log.Warn("bad message type", diag.Field{Key: "type", Value: header.MessageType})
	}
}
