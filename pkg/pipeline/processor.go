package pipeline

import "github.com/harunnryd/procura/pkg/frames"

// FrameProcessor transforms one frame into zero or more frames. Returning
// no frames drops the input; an error drops it and is reported.
type FrameProcessor interface {
	Process(frames.Frame) ([]frames.Frame, error)
	Name() string
}

// ProcessorFunc adapts a function to FrameProcessor.
type ProcessorFunc struct {
	Label string
	Fn    func(frames.Frame) ([]frames.Frame, error)
}

func (p ProcessorFunc) Process(f frames.Frame) ([]frames.Frame, error) { return p.Fn(f) }
func (p ProcessorFunc) Name() string                                   { return p.Label }
