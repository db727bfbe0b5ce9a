// Command sentryd runs the fall/help-request detection daemon: it opens a
// PCAP replay frame source (live capture is not implemented; without -pcap
// it exits with an error), selects a detector backend,
// and wires them through the concurrency pipeline into the subject
// registry, risk engine, and alert trigger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dragonx/sentinel/internal/detect/backend"
	"github.com/dragonx/sentinel/internal/detect/l1source"
	"github.com/dragonx/sentinel/internal/detect/l3detector"
	"github.com/dragonx/sentinel/internal/detect/l4risk"
	"github.com/dragonx/sentinel/internal/detect/l5alert"
	"github.com/dragonx/sentinel/internal/detect/l6subject"
	"github.com/dragonx/sentinel/internal/detect/pipeline"
	"github.com/dragonx/sentinel/internal/platform/config"
	"github.com/dragonx/sentinel/internal/platform/logging"
	"github.com/dragonx/sentinel/internal/platform/metrics"
	"github.com/dragonx/sentinel/internal/platform/telemetry"
	"github.com/dragonx/sentinel/internal/version"
)

var (
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	configPath    = flag.String("config", "", "Optional YAML config file (see internal/platform/config); flags below override its values when set")
	listen        = flag.String("listen", ":8090", "HTTP listen address for /health and /metrics")
	pcapFile      = flag.String("pcap", "", "Replay frames from a PCAP capture instead of a live device")
	pcapUDPPort   = flag.Int("pcap-udp-port", 2369, "UDP port to extract frame payloads from, in PCAP replay mode")
	subjectModels = flag.String("subject-models", "", "Directory holding the go-face recognizer model files (required unless -no-subjects)")
	subjectDB     = flag.String("subject-db", "", "Path to the subject registry's durable store (overrides config)")
	noSubjects    = flag.Bool("no-subjects", false, "Disable subject identification; every detection fuses into one unidentified subject")
	alertLogPath  = flag.String("alert-log", "", "Optional path to an ndjson alert log (one JSON object per line, overrides config)")
	targetWidth   = flag.Int("width", 640, "Target frame width")
	targetHeight  = flag.Int("height", 480, "Target frame height")
	npuSerialPort = flag.String("npu-serial-port", "", "Serial device path for the platform NPU backend, if present")
	fusionWorkers = flag.Int("fusion-workers", 4, "Number of per-subject fusion worker goroutines")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("sentryd %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logTiers := logging.New("sentryd: ", os.Stdout, os.Stdout, nil)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	tp := telemetry.Provider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	metricsReg := metrics.New()
	if err := metricsReg.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("register metrics: %v", err)
	}

	source, err := openSource()
	if err != nil {
		log.Fatalf("open frame source: %v", err)
	}
	defer source.Close()

	registry := backend.NewRegistry(detectPlatform(), cfg.BackendPriority)
	registry.Register("generic-cpu", func() (backend.Detector, error) {
		return backend.NewCPUBackend(nil), nil
	})
	if *npuSerialPort != "" {
		registry.Register("platform-native-npu", func() (backend.Detector, error) {
			return backend.OpenNPUSerialBackend(*npuSerialPort, backend.DefaultNPUSerialMode(), nil)
		})
	}

	detector, err := l3detector.New(registry, l3detector.Config{
		VisibilityFloor:         cfg.VisibilityFloor,
		ZeroDetectionDowngradeN: cfg.ZeroDetectionDowngradeN,
		ReupgradeSuccessCount:   cfg.ReupgradeSuccessCount,
		Required:                backend.Capabilities{SupportsPose: true},
	}, logTiers)
	if err != nil {
		log.Fatalf("select detector backend: %v", err)
	}

	subjectDBPath := cfg.SubjectStorePath
	if *subjectDB != "" {
		subjectDBPath = *subjectDB
	}

	var subjects pipeline.SubjectIdentifier
	if *noSubjects {
		subjects = noopSubjectIdentifier{}
	} else {
		if *subjectModels == "" {
			log.Fatal("-subject-models is required unless -no-subjects is set")
		}
		reg, err := l6subject.Open(*subjectModels, subjectDBPath, cfg.SubjectMatchThreshold)
		if err != nil {
			log.Fatalf("open subject registry: %v", err)
		}
		defer reg.Close()
		subjects = reg
	}

	alertLogFile := cfg.AlertLogPath
	if *alertLogPath != "" {
		alertLogFile = *alertLogPath
	}
	var alertLog *os.File
	if alertLogFile != "" {
		alertLog, err = os.OpenFile(alertLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("open alert log: %v", err)
		}
		defer alertLog.Close()
	}

	trigger := l5alert.NewTrigger(cfg.AlertCooldown, cfg.AlertRingCapacity, metricsReg)

	riskCfg := l4risk.Config{
		WeightPosture:        cfg.RiskWeightPosture,
		WeightBalance:        cfg.RiskWeightBalance,
		WeightStability:      cfg.RiskWeightStability,
		WeightFatigue:        cfg.RiskWeightFatigue,
		StabilityWindow:      cfg.StabilityWindowSamples,
		FatigueWindow:        cfg.FatigueWindow,
		AudioFusionWindow:    cfg.AudioFusionWindow,
		OutOfOrderTolerance:  cfg.OutOfOrderTolerance,
		MaxHistorySamples:    cfg.MaxHistorySamples,
		HistoryTTL:           cfg.HistoryTTL,
		AlertLowThreshold:      cfg.AlertLowThreshold,
		AlertMediumThreshold:   cfg.AlertMediumThreshold,
		AlertHighThreshold:     cfg.AlertHighThreshold,
		AlertCriticalThreshold: cfg.AlertCriticalThreshold,
	}

	var alertWriter pipeline.Config
	alertWriter.Kind = backend.KindPose
	alertWriter.FusionWorkers = *fusionWorkers
	if alertLog != nil {
		alertWriter.AlertLog = alertLog
	}

	p := pipeline.New(source, detector, subjects, trigger, nil, riskCfg, metricsReg, logTiers, alertWriter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveHTTP(ctx)

	runCtx, span := telemetry.StartSpan(ctx, tp, "sentryd.run")
	logTiers.Opsf("sentryd: starting detection pipeline")
	if err := p.Run(runCtx); err != nil && err != context.Canceled {
		span.End()
		log.Fatalf("pipeline run: %v", err)
	}
	span.End()
	logTiers.Opsf("sentryd: shutdown complete")
}

// loadConfig reads -config if given, or falls back to config.Default.
// Individual -flag values above still take precedence where set, matching
// the teacher's layered config-then-flags override order.
func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		return nil, err
	}
	return config.Load(data)
}

func openSource() (l1source.Source, error) {
	cfg := l1source.Config{
		TargetWidth:  *targetWidth,
		TargetHeight: *targetHeight,
	}
	if *pcapFile != "" {
		return l1source.OpenPCAP(*pcapFile, *pcapUDPPort, cfg)
	}
	return nil, fmt.Errorf("no live camera capturer is wired into this build; pass -pcap to replay a capture")
}

func detectPlatform() backend.PlatformTag {
	return backend.PlatformGenericCPU
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","service":"sentryd"}`)
}

func serveHTTP(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// noopSubjectIdentifier disables identification: every frame fuses into
// the pipeline's single "unidentified" subject bucket.
type noopSubjectIdentifier struct{}

func (noopSubjectIdentifier) Identify([]byte) (string, bool, error) {
	return "", false, nil
}

var _ pipeline.SubjectIdentifier = noopSubjectIdentifier{}
