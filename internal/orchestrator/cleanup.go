package orchestrator

import (
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
)

// CleanupTemps removes files in dir whose names start with one of prefixes
// and that are older than maxAge. It returns how many were removed.
func CleanupTemps(dir string, prefixes []string, maxAge time.Duration) int {
    if dir == "" { return 0 }
    now := time.Now()
    removed := 0
    _ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
        if err != nil || info == nil || info.IsDir() { return nil }
        if !hasAnyPrefix(info.Name(), prefixes) { return nil }
        if now.Sub(info.ModTime()) < maxAge { return nil }
        if err := os.Remove(path); err != nil {
            log.Warn().Err(err).Str("path", path).Msg("cleanup: remove failed")
            return nil
        }
        removed++
        return nil
    })
    if removed > 0 { log.Info().Str("dir", dir).Int("removed", removed).Msg("cleanup: stale files removed") }
    return removed
}

// TempPrefixes are the name prefixes of files the service leaves behind:
// uploads and SafeRender spill files.
var TempPrefixes = []string{uploadPrefix, "redact-page-"}

func hasAnyPrefix(s string, prefixes []string) bool {
    for _, p := range prefixes {
        if strings.HasPrefix(s, p) { return true }
    }
    return false
}
