package orchestrator

import (
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strings"
)

// uploadPrefix marks files written by SaveUpload so cleanup can find them.
const uploadPrefix = "upload-"

// SaveUpload stores an uploaded input under dir as upload-<jobID>_<name> and
// returns the local path.
func SaveUpload(dir, jobID, name string, r io.Reader) (string, error) {
    if dir == "" { dir = "uploads" }
    if err := os.MkdirAll(dir, 0o755); err != nil { return "", fmt.Errorf("create upload dir: %w", err) }
    name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
    if name == "" || name == "." || name == "/" { name = "upload.pdf" }
    p := filepath.Join(dir, fmt.Sprintf("%s%s_%s", uploadPrefix, jobID, name))
    f, err := os.Create(p)
    if err != nil { return "", fmt.Errorf("save upload: %w", err) }
    if _, err := io.Copy(f, r); err != nil {
        f.Close()
        os.Remove(p)
        return "", fmt.Errorf("write upload: %w", err)
    }
    return p, f.Close()
}
