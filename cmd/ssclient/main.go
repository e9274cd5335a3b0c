// Command ssclient connects to a SpyServer instance and drains its IQ
// and/or FFT streams to files, the Go counterpart of the distilled
// reference client's ss_client binary.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/miweber67/spyserver-client/internal/diag"
	"github.com/miweber67/spyserver-client/internal/metrics"
	"github.com/miweber67/spyserver-client/spyserver"
)

const version = "v0.1.0"

func main() {
	var (
		configFile  = pflag.String("config", "", "YAML config file")
		server      = pflag.StringP("server", "r", "", "SpyServer host")
		port        = pflag.IntP("port", "p", 0, "SpyServer port")
		sampleBits  = pflag.IntP("bits", "b", 0, "sample bits, 8 or 16")
		centerFreq  = pflag.Float64P("freq", "f", 0, "center frequency in Hz")
		sampleRate  = pflag.Float64P("rate", "s", 0, "desired sample rate in Hz")
		gain        = pflag.Float64P("gain", "g", -1, "LNA gain stage")
		digitalGain = pflag.Float64P("digital-gain", "d", -1, "digital gain, 0.0-1.0")
		integration = pflag.IntP("integrate", "i", 0, "fft integration period in seconds")
		numSamples  = pflag.Uint64P("num-samples", "n", 0, "stop after this many IQ samples (0 = unbounded)")
		oneShot     = pflag.BoolP("oneshot", "1", false, "write one fft average and exit")
		compress    = pflag.Bool("compress", false, "zstd-compress the raw IQ output")
		mode        = pflag.String("mode", "", "iq, fft, or both")
		showVersion = pflag.BoolP("version", "v", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("ssclient %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlagOverrides(&cfg, *server, *port, *sampleBits, *centerFreq, *sampleRate,
		*gain, *digitalGain, *integration, *numSamples, *oneShot, *compress, *mode)

	if args := pflag.Args(); len(args) > 0 {
		cfg.SamplesOutput = args[0]
	}
	if args := pflag.Args(); len(args) > 1 {
		cfg.FFTOutput = args[1]
	}

	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := diag.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = diag.Info
	}
	format, err := diag.ParseFormat(cfg.LogFormat)
	if err != nil {
		format = diag.Text
	}
	logger := diag.New(level, format, os.Stderr)
	diag.SetDefault(logger)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	if cfg.MetricsOn {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("serving metrics", diag.Field{Key: "addr", Value: cfg.MetricsAt})
			if err := http.ListenAndServe(cfg.MetricsAt, mux); err != nil {
				logger.Error("metrics server stopped", diag.Field{Key: "error", Value: err.Error()})
			}
		}()
	}

	if err := run(cfg, logger, collector); err != nil {
		logger.Error("ssclient exiting with error", diag.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *Config, server string, port, sampleBits int, centerFreq, sampleRate, gain, digitalGain float64, integration int, numSamples uint64, oneShot, compress bool, mode string) {
	if server != "" {
		cfg.Server = server
	}
	if port != 0 {
		cfg.Port = port
	}
	if sampleBits != 0 {
		cfg.SampleBits = sampleBits
	}
	if centerFreq != 0 {
		cfg.CenterFreq = centerFreq
	}
	if sampleRate != 0 {
		cfg.SampleRate = sampleRate
	}
	if gain >= 0 {
		cfg.Gain = gain
	}
	if digitalGain >= 0 {
		cfg.DigitalGain = digitalGain
	}
	if integration != 0 {
		cfg.IntegrationS = integration
	}
	if numSamples != 0 {
		cfg.NumSamples = numSamples
	}
	if oneShot {
		cfg.OneShot = true
	}
	if compress {
		cfg.Compress = true
	}
	if mode != "" {
		cfg.Mode = mode
	}
}

func run(cfg Config, logger diag.Logger, collector *metrics.Collector) error {
	wantIQ := cfg.Mode == "iq" || cfg.Mode == "both"
	wantFFT := cfg.Mode == "fft" || cfg.Mode == "both"

	opts := spyserver.Options{
		Address:    fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
		WantIQ:     wantIQ,
		WantFFT:    wantFFT,
		SampleBits: uint32(cfg.SampleBits),
		FFTBins:    uint32(cfg.FFTBins),
		Logger:     logger,
		Metrics:    collector,
	}

	logger.Info("connecting", diag.Field{Key: "address", Value: opts.Address})
	s, err := spyserver.Connect(opts)
	if err != nil {
		return fmt.Errorf("ssclient: connect: %w", err)
	}
	defer s.Disconnect()

	if _, err := s.SetCenterFreq(uint32(cfg.CenterFreq)); err != nil {
		return fmt.Errorf("ssclient: set center freq: %w", err)
	}
	if cfg.Gain >= 0 {
		if _, err := s.SetGain(uint32(cfg.Gain)); err != nil {
			logger.Warn("set gain failed", diag.Field{Key: "error", Value: err.Error()})
		}
	}
	if cfg.DigitalGain > 0 {
		if _, err := s.SetGain(uint32(cfg.DigitalGain), "Digital"); err != nil {
			logger.Warn("set digital gain failed", diag.Field{Key: "error", Value: err.Error()})
		}
	}
	stage := nearestDecimationStage(s, cfg.SampleRate)
	if err := s.SetSampleRateByDecimationStage(stage); err != nil {
		return fmt.Errorf("ssclient: set sample rate: %w", err)
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("ssclient: start streaming: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if wantIQ {
		iqw, err := newIQWriter(cfg.SamplesOutput, cfg.SampleBits, cfg.NumSamples, cfg.Compress, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer iqw.Close()
			if err := iqw.run(s); err != nil {
				errCh <- err
			}
		}()
	}

	if wantFFT {
		fftw := newFFTWriter(cfg.FFTOutput, cfg.CenterFreq, cfg.SampleRate, cfg.FFTBins, time.Duration(cfg.IntegrationS)*time.Second, cfg.OneShot, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fftw.run(s); err != nil {
				errCh <- err
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", diag.Field{Key: "signal", Value: sig.String()})
		s.Stop()
		s.Disconnect()
		<-done
	case err := <-errCh:
		return err
	}
	return nil
}

// nearestDecimationStage picks the decimation stage whose sample rate is
// closest to desired from the table the session built at handshake.
func nearestDecimationStage(s *spyserver.Session, desired float64) uint32 {
	rates := s.SampleRates()
	if len(rates) == 0 {
		return 0
	}
	best := rates[0]
	bestDiff := abs(float64(best.RateHz) - desired)
	for _, r := range rates[1:] {
		if diff := abs(float64(r.RateHz) - desired); diff < bestDiff {
			best, bestDiff = r, diff
		}
	}
	return best.DecimationStage
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
