// Command modelopt drives the model optimization pipeline: scanning a
// directory of trained models, converting them to ONNX, submitting cloud
// compile/profile/link/quantize jobs, and waiting on their completion.
//
// Exit codes: 0 full success, 1 partial success (some models failed), 2
// configuration error (bad flags, unreadable paths).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dragonx/sentinel/internal/optimize/cloud"
	"github.com/dragonx/sentinel/internal/optimize/convert"
	"github.com/dragonx/sentinel/internal/optimize/jobmonitor"
	"github.com/dragonx/sentinel/internal/optimize/scanner"
	"github.com/dragonx/sentinel/internal/platform/config"
	"github.com/dragonx/sentinel/internal/security"
	"github.com/dragonx/sentinel/internal/version"
)

// loadConfig reads path if non-empty, else returns config.Default(). Used
// by subcommands to source the job cache directory and device defaults
// so a single config.yaml can drive both sentryd and modelopt.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.Load(data)
}

const (
	exitSuccess = 0
	exitPartial = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: modelopt <scan|convert|submit|wait> [flags]")
		return exitConfig
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:])
	case "convert":
		return runConvert(args[1:])
	case "submit":
		return runSubmit(args[1:])
	case "wait":
		return runWait(args[1:])
	case "version":
		fmt.Printf("modelopt %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return exitConfig
	}
}

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	configPath := fs.String("config", "", "Optional YAML config file sourcing the default -root")
	root := fs.String("root", "", "Directory to scan for model files (overrides config)")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return exitConfig
	}
	resolvedRoot := cfg.ModelScanRoot
	if *root != "" {
		resolvedRoot = *root
	}
	if resolvedRoot == "" {
		fmt.Fprintln(os.Stderr, "scan: -root is required (or set model_scan_root in config)")
		return exitConfig
	}

	artifacts, err := scanner.Scan(resolvedRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		return exitConfig
	}
	for _, a := range artifacts {
		fmt.Printf("%s\t%s\t%s\n", a.Path, a.Format, a.Quantization)
	}
	return exitSuccess
}

func runConvert(args []string) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	configPath := fs.String("config", "", "Optional YAML config file sourcing the default -root")
	root := fs.String("root", "", "Directory to scan for TFLite models to convert (overrides config)")
	outDir := fs.String("out", "", "Output directory for converted ONNX models")
	if err := fs.Parse(args); err != nil || *outDir == "" {
		fmt.Fprintln(os.Stderr, "convert: -out is required")
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert: %v\n", err)
		return exitConfig
	}
	resolvedRoot := cfg.ModelScanRoot
	if *root != "" {
		resolvedRoot = *root
	}
	if resolvedRoot == "" {
		fmt.Fprintln(os.Stderr, "convert: -root is required (or set model_scan_root in config)")
		return exitConfig
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "convert: create output dir: %v\n", err)
		return exitConfig
	}

	artifacts, err := scanner.Scan(resolvedRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert: %v\n", err)
		return exitConfig
	}

	runner := convert.NewExecRunner()
	var failures int
	for _, a := range artifacts {
		if a.Format != scanner.FormatTFLite {
			continue
		}
		onnxPath := filepath.Join(*outDir, strings.TrimSuffix(filepath.Base(a.Path), filepath.Ext(a.Path))+".onnx")
		if err := security.ValidatePathWithinDirectory(onnxPath, *outDir); err != nil {
			fmt.Printf("FAIL\t%s\t%v\n", a.Path, err)
			failures++
			continue
		}
		if err := convert.TFLiteToONNX(runner, a.Path, onnxPath); err != nil {
			fmt.Printf("FAIL\t%s\t%v\n", a.Path, err)
			failures++
			continue
		}
		fmt.Printf("OK\t%s\t%s\n", a.Path, onnxPath)
	}

	if failures > 0 {
		return exitPartial
	}
	return exitSuccess
}

// runSubmit validates inputs and records a PENDING job in the cache
// directory. Actual network submission is delegated to a cloud.Service the
// deployment injects (transport, auth, and rate-limiting are explicitly
// below this CLI's abstraction boundary); without one wired in, submit
// stops after validation and cache bookkeeping.
func runSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	configPath := fs.String("config", "", "Optional YAML config file sourcing defaults for -cache-dir and -device")
	modelPath := fs.String("model", "", "Path to the ONNX model to submit")
	device := fs.String("device", "", "Preferred target device name (overrides config)")
	kind := fs.String("kind", string(jobmonitor.KindCompile), "Job kind: compile, profile, link, or quantize")
	cacheDir := fs.String("cache-dir", "", "Directory to record job state for resume-after-restart (overrides config)")
	if err := fs.Parse(args); err != nil || *modelPath == "" {
		fmt.Fprintln(os.Stderr, "submit: -model is required")
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		return exitConfig
	}
	resolvedDevice := cfg.PreferredDevice
	if *device != "" {
		resolvedDevice = *device
	}
	if resolvedDevice == "" {
		fmt.Fprintln(os.Stderr, "submit: -device is required (or set preferred_device in config)")
		return exitConfig
	}
	resolvedCacheDir := cfg.JobCacheDir
	if *cacheDir != "" {
		resolvedCacheDir = *cacheDir
	}

	spec := cloud.InputSpec{Name: "input_1", Shape: []int{1, 3, 224, 224}, Dtype: "float32"}
	if err := spec.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		return exitConfig
	}

	job := jobmonitor.CachedJob{
		ID:           uuid.NewString(),
		Kind:         jobmonitor.Kind(*kind),
		Device:       resolvedDevice,
		State:        jobmonitor.StatePending,
		ArtifactPath: *modelPath,
	}
	if err := jobmonitor.WriteCache(resolvedCacheDir, job); err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		return exitConfig
	}

	fmt.Fprintln(os.Stderr, "submit: no cloud.Service is wired into this build; job recorded as PENDING in the cache, awaiting a deployment-provided client")
	return exitConfig
}

// runWait inspects the cached job states left by runSubmit (or a prior
// cloud.Orchestrator run) without making network calls, and reports their
// terminal/non-terminal mix.
func runWait(args []string) int {
	fs := flag.NewFlagSet("wait", flag.ContinueOnError)
	configPath := fs.String("config", "", "Optional YAML config file sourcing the default -cache-dir")
	cacheDir := fs.String("cache-dir", "", "Directory containing cached job state (overrides config)")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wait: %v\n", err)
		return exitConfig
	}
	resolvedCacheDir := cfg.JobCacheDir
	if *cacheDir != "" {
		resolvedCacheDir = *cacheDir
	}

	jobs, err := jobmonitor.ReadCacheDir(resolvedCacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wait: %v\n", err)
		return exitConfig
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stderr, "wait: no cached jobs found")
		return exitConfig
	}

	var failed, pending int
	for _, j := range jobs {
		fmt.Printf("%s\t%s\t%s\t%d%%\n", j.ID, j.Kind, j.State, j.Progress)
		switch {
		case j.State == jobmonitor.StateFailed || j.State == jobmonitor.StateTimeout || j.State == jobmonitor.StateRejected:
			failed++
		case !j.State.Terminal():
			pending++
		}
	}

	if pending > 0 {
		fmt.Fprintln(os.Stderr, "wait: jobs still pending; no live cloud.Service wired to poll them further")
		return exitConfig
	}
	if failed > 0 {
		return exitPartial
	}
	return exitSuccess
}
