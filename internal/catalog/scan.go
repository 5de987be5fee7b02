// Package catalog discovers model descriptors on disk.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"modelcore/internal/accountant"
	"modelcore/internal/common/fsutil"
	"modelcore/pkg/types"
)

// quantToken finds a quantization scheme in a file name (Q4_K_M, IQ3_XS, F16).
var quantToken = regexp.MustCompile(`(?i)(?:^|[._-])((?:i?q\d+(?:_[a-z0-9]+)*)|(?:b?f(?:16|32)))(?:$|[._-])`)

// ScanDir walks dir (non-recursively) and builds descriptors from file names:
//   - *.gguf files become language models, or text embeddings when the name
//     mentions "embed".
//   - ggml-<tier>[.en].bin files become transcription models.
//
// Results are sorted by id.
func ScanDir(dir string) ([]types.ModelDescriptor, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []types.ModelDescriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := Describe(filepath.Join(abs, e.Name())); ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Describe derives a descriptor from a single model file path.
func Describe(path string) (types.ModelDescriptor, bool) {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gguf"):
		stem := strings.TrimSuffix(lower, ".gguf")
		d := types.ModelDescriptor{ID: stem, Category: types.CategoryLanguage, Path: path}
		if strings.Contains(stem, "embed") {
			d.Category = types.CategoryTextEmbedding
		}
		if m := quantToken.FindStringSubmatch(stem); m != nil {
			d.Quantization = strings.ToUpper(m[1])
		}
		return d, true
	case strings.HasPrefix(lower, "ggml-") && strings.HasSuffix(lower, ".bin"):
		stem := strings.TrimSuffix(strings.TrimPrefix(lower, "ggml-"), ".bin")
		d := types.ModelDescriptor{ID: "whisper-" + stem, Category: types.CategoryTranscription, Path: path}
		d.Size = accountant.Tier(types.ModelDescriptor{ID: stem})
		return d, true
	}
	return types.ModelDescriptor{}, false
}
