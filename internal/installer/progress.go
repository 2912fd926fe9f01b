package installer

import "io"

// progressWriter forwards writes and reports progress against a known
// total, at most once per whole percent. A non-positive total disables
// reporting, an artifact without a content length shows no numbers.
type progressWriter struct {
	w          io.Writer
	total      int64
	written    int64
	lastPct    int
	onProgress func(pct float64)
}

func newProgressWriter(w io.Writer, total int64, onProgress func(float64)) *progressWriter {
	return &progressWriter{w: w, total: total, lastPct: -1, onProgress: onProgress}
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if err == nil && p.total > 0 && p.onProgress != nil {
		pct := int(float64(p.written) / float64(p.total) * 100)
		if pct > 100 {
			pct = 100
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.onProgress(float64(pct))
		}
	}
	return n, err
}

// countingReader tracks how many compressed bytes the decompressor has
// consumed, which is the progress basis for tar archives.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
