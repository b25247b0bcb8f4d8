package indexjobs

// Chunk is one schedulable unit of files bounded by both a file-count and a
// byte budget. A checkpoint is written after each chunk, so chunk size caps
// the amount of work a crash can lose.
type Chunk struct {
	Files []FileInfo
	Bytes int64
}

// BuildChunks partitions files, preserving order, into chunks holding at
// most maxFiles files and at most maxBytes total bytes. A chunk closes as
// soon as either budget is reached, and a file larger than the byte budget
// occupies a chunk of its own rather than being dropped.
func BuildChunks(files []FileInfo, maxFiles int, maxBytes int64) []Chunk {
	if maxFiles < 1 {
		maxFiles = 1
	}
	if maxBytes < 1 {
		maxBytes = 1
	}

	var chunks []Chunk
	var cur Chunk
	flush := func() {
		if len(cur.Files) > 0 {
			chunks = append(chunks, cur)
			cur = Chunk{}
		}
	}
	for _, f := range files {
		if len(cur.Files) > 0 && (len(cur.Files)+1 > maxFiles || cur.Bytes+f.Size > maxBytes) {
			flush()
		}
		cur.Files = append(cur.Files, f)
		cur.Bytes += f.Size
		if len(cur.Files) >= maxFiles || cur.Bytes >= maxBytes {
			flush()
		}
	}
	flush()
	return chunks
}
