package entropy

import "testing"

func TestEncodeDecodeBlock_RoundTrip(t *testing.T) {
	blocks := [][]int32{
		makeCoeffs(map[int]int32{0: 5, 1: 3, 4: -7, 9: 1, 30: 200}),
		makeCoeffs(nil), // all-zero AC block
		makeCoeffs(map[int]int32{0: -1, 1: 1}),
		makeCoeffs(map[int]int32{0: 9, 63: -1}),
	}

	buf := NewBuffer()
	for _, c := range blocks {
		buf.EncodeBlock(c)
	}
	enc := buf.Finish()

	dec, err := NewDecoder(enc)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	for bi, want := range blocks {
		got := make([]int32, 64)
		if err := dec.DecodeBlock(got); err != nil {
			t.Fatalf("block %d: DecodeBlock: %v", bi, err)
		}
		for i := 1; i < 64; i++ {
			if got[i] != want[i] {
				t.Fatalf("block %d coeff %d = %d, want %d", bi, i, got[i], want[i])
			}
		}
	}
}

func makeCoeffs(nonzero map[int]int32) []int32 {
	c := make([]int32, 64)
	for idx, v := range nonzero {
		c[idx] = v
	}
	return c
}

func TestHistogram_AddAndTotal(t *testing.T) {
	h := &Histogram{}
	h.Add(3)
	h.Add(3)
	h.Add(7)
	if h.Total != 3 {
		t.Errorf("Total = %d, want 3", h.Total)
	}
	if h.Counts[3] != 2 || h.Counts[7] != 1 {
		t.Errorf("Counts = %v", h.Counts)
	}
}

func TestClusterHistograms_IdenticalHistogramsMergeToOneCluster(t *testing.T) {
	a, b := &Histogram{}, &Histogram{}
	for _, v := range []byte{1, 1, 2, 3} {
		a.Add(v)
		b.Add(v)
	}
	contextMap, numClusters := ClusterHistograms([]*Histogram{a, b}, 0.05)
	if numClusters != 1 {
		t.Fatalf("numClusters = %d, want 1 for identical histograms", numClusters)
	}
	if contextMap[0] != contextMap[1] {
		t.Errorf("contextMap = %v, want both entries in the same cluster", contextMap)
	}
}

func TestClusterHistograms_DissimilarHistogramsStaySeparate(t *testing.T) {
	a, b := &Histogram{}, &Histogram{}
	for i := 0; i < 100; i++ {
		a.Add(1)
	}
	for i := 0; i < 100; i++ {
		b.Add(200)
	}
	_, numClusters := ClusterHistograms([]*Histogram{a, b}, 0.05)
	if numClusters != 2 {
		t.Fatalf("numClusters = %d, want 2 for fully dissimilar histograms", numClusters)
	}
}

func TestNormalizeCounts_SumsToTableSize(t *testing.T) {
	h := &Histogram{}
	for i := 0; i < 50; i++ {
		h.Add(0)
	}
	for i := 0; i < 30; i++ {
		h.Add(1)
	}
	for i := 0; i < 20; i++ {
		h.Add(5)
	}
	counts, tableLog, err := NormalizeCounts(h, 8)
	if err != nil {
		t.Fatalf("NormalizeCounts: %v", err)
	}
	if tableLog != 8 {
		t.Fatalf("tableLog = %d, want 8", tableLog)
	}
	var sum int64
	for _, c := range counts {
		sum += int64(c)
	}
	if sum != 1<<8 {
		t.Errorf("sum(counts) = %d, want %d", sum, 1<<8)
	}
}

func TestNormalizeCounts_RejectsEmptyHistogram(t *testing.T) {
	_, _, err := NormalizeCounts(&Histogram{}, 8)
	if err == nil {
		t.Fatal("expected error for empty histogram")
	}
}

func TestCompressTable_RoundTripsThroughLength(t *testing.T) {
	counts := []int16{1, 2, 4, 8, 16, 32, 64, 128}
	out, err := CompressTable(counts)
	if err != nil {
		t.Fatalf("CompressTable: %v", err)
	}
	if len(out) == 0 {
		t.Error("CompressTable produced empty output")
	}
}
