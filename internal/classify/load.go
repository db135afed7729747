package classify

import (
	"io"
	"os"

	"github.com/deixis/evidence/internal/artifact"
	"github.com/deixis/evidence/internal/config"
	"go.uber.org/zap"
)

// Load reads the classifier inputs named by paths. A file that is
// missing or malformed counts as absent.
func Load(paths config.ClassifyPaths, logger *zap.Logger) Inputs {
	if logger == nil {
		logger = zap.NewNop()
	}
	var in Inputs

	var s Structural
	if loadOptional(paths.Structural, &s, logger) {
		in.Structural = &s
	}
	in.Execution = loadExecution(paths.Execution, logger)
	var p PipelineResult
	if loadOptional(paths.Result, &p, logger) {
		in.Result = &p
	}
	return in
}

func loadOptional(path string, v any, logger *zap.Logger) bool {
	if err := artifact.Load(path, v); err != nil {
		logger.Debug("classifier input skipped", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

func loadExecution(path string, logger *zap.Logger) *Execution {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("classifier input skipped", zap.String("path", path), zap.Error(err))
		return nil
	}
	e, err := ParseExecution(data)
	if err != nil {
		logger.Debug("classifier input skipped", zap.String("path", path), zap.Error(err))
		return nil
	}
	return e
}

// Run loads the inputs, classifies them, and writes the verdict to
// paths.Output (creating its directory) with a compact copy on console.
func Run(paths config.ClassifyPaths, console io.Writer, logger *zap.Logger) (*Classification, error) {
	c := Classify(Load(paths, logger))
	if err := artifact.Emit(c, paths.Output, console, artifact.Options{MkdirAll: true}); err != nil {
		return nil, err
	}
	return c, nil
}
