package adaptor

import "github.com/bbockelm/XrdAdaptor/xrd"

// splitChunks distributes the wire layer's maximum chunk size across two
// sources in proportion to the peer's quality: the better (lower-scoring)
// source is weighted by the other's score and so takes the larger slice.
func splitChunks(maxChunk int64, q1, q2 uint64) (chunk1, chunk2 int64) {
	if q1 == 0 {
		q1 = 1
	}
	if q2 == 0 {
		q2 = 1
	}
	fq1, fq2 := float64(q1), float64(q2)
	chunk1 = int64(float64(maxChunk) * (fq2 / (fq1 + fq2)))
	chunk2 = int64(float64(maxChunk) * (fq1 / (fq1 + fq2)))
	if chunk1 <= 0 && chunk2 <= 0 {
		chunk1 = maxChunk
	}
	return chunk1, chunk2
}

// splitRequest cuts a vector read into two disjoint subsets covering the
// same bytes. The working copy is consumed from the front into req1 and
// from the back into req2, alternating in quota-sized bites, so each output
// entry is a contiguous sub-range of one input entry.
func splitRequest(iolist []xrd.PosBuffer, q1, q2 uint64, maxChunk int64) (req1, req2 []xrd.PosBuffer) {
	if len(iolist) == 0 {
		return nil, nil
	}
	chunk1, chunk2 := splitChunks(maxChunk, q1, q2)

	w := append([]xrd.PosBuffer(nil), iolist...)
	front := 0
	req1 = make([]xrd.PosBuffer, 0, len(iolist)/2+1)
	req2 = make([]xrd.PosBuffer, 0, len(iolist)/2+1)

	for len(w)-front > 0 {
		front, req1 = consumeFront(front, w, req1, chunk1)
		w, req2 = consumeBack(front, w, req2, chunk2)
	}
	return req1, req2
}

// consumeFront transfers up to chunk bytes from the front of input into
// output, splitting the boundary entry in place.
func consumeFront(front int, input, output []xrd.PosBuffer, chunk int64) (int, []xrd.PosBuffer) {
	for chunk > 0 && front < len(input) {
		io := &input[front]
		if io.Size() > chunk {
			output = append(output, xrd.PosBuffer{Offset: io.Offset, Data: io.Data[:chunk]})
			io.Offset += chunk
			io.Data = io.Data[chunk:]
			chunk = 0
		} else {
			output = append(output, *io)
			chunk -= io.Size()
			front++
		}
	}
	return front, output
}

// consumeBack transfers up to chunk bytes from the back of input into
// output. Entries shorter than the remaining quota are popped whole; a
// longer boundary entry gives up its leading part and stays.
func consumeBack(front int, input, output []xrd.PosBuffer, chunk int64) ([]xrd.PosBuffer, []xrd.PosBuffer) {
	for chunk > 0 && front < len(input) {
		io := &input[len(input)-1]
		if io.Size() > chunk {
			output = append(output, xrd.PosBuffer{Offset: io.Offset, Data: io.Data[:chunk]})
			io.Offset += chunk
			io.Data = io.Data[chunk:]
			chunk = 0
		} else {
			output = append(output, *io)
			chunk -= io.Size()
			input = input[:len(input)-1]
		}
	}
	return input, output
}
