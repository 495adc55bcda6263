package processors

import (
	"log/slog"
	"time"

	"github.com/harunnryd/procura/pkg/decoder"
	"github.com/harunnryd/procura/pkg/errorsx"
	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/pipeline"
	"github.com/harunnryd/procura/pkg/redact"
)

// DecodeProcessor recovers the payload of tool output frames. Frames that
// cannot be decoded are dropped: the next frame may well succeed.
type DecodeProcessor struct {
	obs metrics.Observer
	now func() time.Time
	log *slog.Logger
}

// NewDecodeProcessor stamps failure metrics with now, or time.Now when nil.
func NewDecodeProcessor(obs metrics.Observer, now func() time.Time, log *slog.Logger) *DecodeProcessor {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &DecodeProcessor{obs: obs, now: now, log: log}
}

func (p *DecodeProcessor) Name() string { return "decode_processor" }

func (p *DecodeProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	if f.Kind() != frames.KindToolOutput {
		return []frames.Frame{f}, nil
	}
	tf := f.(frames.ToolOutputFrame)
	meta := tf.Meta()
	sessionID := meta[frames.MetaSessionID]

	payload, err := decoder.DecodeToolOutput(tf.Output())
	if err != nil {
		reason := errorsx.Reason(err)
		p.log.Debug("decode_failed",
			"session_id", sessionID,
			"tool_name", tf.ToolName(),
			"reason", reason,
			"error", err,
			"raw", redact.Snippet(string(tf.Output())),
		)
		p.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventDecodeFailed,
			Time: p.now(),
			Tags: map[string]string{
				frames.MetaSessionID: sessionID,
				frames.MetaToolName:  tf.ToolName(),
				"reason":             string(reason),
			},
		})
		return nil, nil
	}
	return []frames.Frame{frames.NewDecodedFrame(sessionID, tf.PTS(), tf.ToolName(), payload, meta)}, nil
}

var _ pipeline.FrameProcessor = (*DecodeProcessor)(nil)
