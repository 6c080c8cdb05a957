package embedding

// meanPool averages token vectors of a [tokens, dims] row-major buffer,
// counting only positions whose attention mask is set.
func meanPool(hidden []float32, attentionMask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var count float32
	for t, m := range attentionMask {
		if m == 0 {
			continue
		}
		offset := t * dims
		if offset+dims > len(hidden) {
			break
		}
		for d := 0; d < dims; d++ {
			out[d] += hidden[offset+d]
		}
		count++
	}
	if count > 0 {
		for d := range out {
			out[d] /= count
		}
	}
	return out
}
