package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir is where crash reports are written; set by InstallCrashHandler
var CrashLogDir = filepath.Join("test-results", "logs")

// crashTarget is recorded in crash reports so a crash can be tied to a site
var crashTarget string

// InstallCrashHandler points crash reports at <report.output_dir>/logs.
// Pair it with a deferred RecoverWithCrashFile in main.
func InstallCrashHandler(config *Config) {
	if config.Report.OutputDir != "" {
		CrashLogDir = filepath.Join(config.Report.OutputDir, "logs")
	}
	crashTarget = config.Target.BaseURL

	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create crash log directory: %v\n", err)
	}
}

// buildCrashReport renders the panic, every goroutine stack and runtime stats
func buildCrashReport(panicVal interface{}, stackTrace string, at time.Time) []byte {
	var report bytes.Buffer

	fmt.Fprintf(&report, "=== SITEPROBE CRASH REPORT ===\n")
	fmt.Fprintf(&report, "Time: %s\n", at.Format(time.RFC3339))
	fmt.Fprintf(&report, "Version: %s\n", GetFullVersion())
	if crashTarget != "" {
		fmt.Fprintf(&report, "Target: %s\n", crashTarget)
	}

	fmt.Fprintf(&report, "\n=== PANIC VALUE ===\n%v\n", panicVal)
	fmt.Fprintf(&report, "\n=== STACK TRACE ===\n%s\n", stackTrace)
	fmt.Fprintf(&report, "\n=== ALL GOROUTINES ===\n%s\n", GetAllGoroutineStacks())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&report, "\n=== RUNTIME ===\n")
	fmt.Fprintf(&report, "NumGoroutine: %d\nSafeGo spawned: %d\n", runtime.NumGoroutine(), GetGoroutineCount())
	fmt.Fprintf(&report, "GOOS/GOARCH: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&report, "Alloc: %d MB, Sys: %d MB, NumGC: %d\n", mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)
	fmt.Fprintf(&report, "\n=== END CRASH REPORT ===\n")
	return report.Bytes()
}

// WriteCrashFile writes a crash report and returns its path, "" when the
// file could not be written (the report then goes to stderr)
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	report := buildCrashReport(panicVal, stackTrace, now)
	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.log", now.Format("2006-01-02T15-04-05")))

	// Unbuffered write, the process is about to exit
	if err := os.WriteFile(crashPath, report, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to write crash file: %v\n%s", err, report)
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\nPanic: %v\n", crashPath, panicVal)
	return crashPath
}

// GetAllGoroutineStacks returns stack traces for all goroutines
func GetAllGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// GetStackTrace returns the current goroutine's stack trace
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// RecoverWithCrashFile writes a crash file and exits on panic.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, GetStackTrace())
		os.Exit(2)
	}
}
