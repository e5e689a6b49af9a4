package model

// Number assigns consecutive line numbers to lines starting at first.
func Number(lines []string, first int) []Sentence {
	sentences := make([]Sentence, len(lines))
	for i, text := range lines {
		sentences[i] = Sentence{LineNum: first + i, Text: text}
	}
	return sentences
}

// Split cuts sentences into consecutive batches of at most size sentences.
// A non-positive size yields a single batch.
func Split(sentences []Sentence, size int) []SentenceBatch {
	if len(sentences) == 0 {
		return nil
	}
	if size <= 0 || size >= len(sentences) {
		return []SentenceBatch{SentenceBatch(sentences)}
	}
	batches := make([]SentenceBatch, 0, (len(sentences)+size-1)/size)
	for start := 0; start < len(sentences); start += size {
		end := start + size
		if end > len(sentences) {
			end = len(sentences)
		}
		batches = append(batches, SentenceBatch(sentences[start:end:end]))
	}
	return batches
}
