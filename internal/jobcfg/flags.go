package jobcfg

import (
	"github.com/spf13/pflag"
)

var intFlags = []struct {
	name  string
	usage string
	field func(*Request) **int
}{
	{"pages", "Pages to capture", func(r *Request) **int { return &r.Pages }},
	{"wait-ms", "Pause after each page turn", func(r *Request) **int { return &r.WaitMs }},
	{"split", "Pages per part (0 = one document)", func(r *Request) **int { return &r.SplitLimit }},
	{"quality", "JPEG quality (10-100)", func(r *Request) **int { return &r.JPEGQuality }},
	{"max-edge", "Longest page edge in pixels", func(r *Request) **int { return &r.MaxLongEdge }},
	{"checkpoint-pages", "Pages between checkpoints", func(r *Request) **int { return &r.CheckpointPages }},
	{"min-wait-ms", "Adaptive pause lower bound", func(r *Request) **int { return &r.MinWaitMs }},
	{"max-wait-ms", "Adaptive pause upper bound", func(r *Request) **int { return &r.MaxWaitMs }},
}

// AddFlags registers the run override flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	for _, f := range intFlags {
		fs.Int(f.name, 0, f.usage)
	}
	fs.String("format", "", "Page format (jpeg or png)")
	fs.Bool("adaptive", false, "Stretch the pause by processing time")
}

// RequestFromFlags returns a Request holding only the flags that were set.
func RequestFromFlags(fs *pflag.FlagSet) (*Request, error) {
	req := &Request{}
	for _, f := range intFlags {
		if !fs.Changed(f.name) {
			continue
		}
		v, err := fs.GetInt(f.name)
		if err != nil {
			return nil, err
		}
		*f.field(req) = &v
	}
	if fs.Changed("format") {
		v, err := fs.GetString("format")
		if err != nil {
			return nil, err
		}
		req.CaptureFormat = &v
	}
	if fs.Changed("adaptive") {
		v, err := fs.GetBool("adaptive")
		if err != nil {
			return nil, err
		}
		req.AdaptiveDelay = &v
	}
	return req, nil
}
