//go:build onnx

package embedder

import (
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
)

func init() {
	onnxFactory = func(cfg Config) (memory.Embedder, error) {
		return onnx.New(onnx.Config{
			ModelPath:         cfg.ModelPath,
			TokenizerPath:     cfg.TokenizerPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			Dimensions:        cfg.Dimensions,
		})
	}
}
