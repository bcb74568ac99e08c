package chunker

// Chunk is one bounded slice of a page's text, sized for embedding input
// limits. Start and End are character offsets into the source text.
type Chunk struct {
	Content string
	Index   int
	Start   int
	End     int
}

type Options struct {
	Size    int // max chunk size in characters
	Overlap int // characters shared with the previous chunk; must be < Size
}

func DefaultOptions() Options {
	return Options{
		Size:    6000,
		Overlap: 200,
	}
}

// Split slices text into ordered, overlapping chunks. Text no longer than
// Size yields exactly one chunk equal to the text; empty text yields one
// empty chunk so a page keeps a presence in the index for title/url lookup.
// Otherwise chunks start every Size-Overlap characters, each after the first
// sharing exactly Overlap characters with its predecessor, so concatenating
// chunks with the overlap stripped reconstructs the input.
func Split(text string, opts Options) []Chunk {
	if opts.Size <= 0 {
		opts = DefaultOptions()
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= opts.Size {
		return []Chunk{{Content: text, Index: 0, Start: 0, End: len(runes)}}
	}

	step := opts.Size - opts.Overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + opts.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Content: string(runes[start:end]),
			Index:   len(chunks),
			Start:   start,
			End:     end,
		})
	}
	return chunks
}

// Reassemble inverts Split: it concatenates chunks dropping each chunk's
// leading overlap.
func Reassemble(chunks []Chunk, overlap int) string {
	var out []rune
	for i, c := range chunks {
		runes := []rune(c.Content)
		if i > 0 {
			if overlap > len(runes) {
				continue
			}
			runes = runes[overlap:]
		}
		out = append(out, runes...)
	}
	return string(out)
}
