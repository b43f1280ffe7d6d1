package ext2

import "testing"

// TestClassifyRangeBoundaries is a pure unit test of Component F's range
// classifier: the last block of each range and the first block of the
// next must fall on opposite sides of every boundary, for a 1024-byte
// block size (p = 256 pointers per block).
func TestClassifyRangeBoundaries(t *testing.T) {
	sb := &superblock{logBlockSize: 0}
	const p = 256

	cases := []struct {
		name     string
		blockOff uint64
		want     blockRange
	}{
		{"last direct block", directPointers - 1, rangeDirect},
		{"first single-indirect block", directPointers, rangeSingle},
		{"last single-indirect block", directPointers + p - 1, rangeSingle},
		{"first double-indirect block", directPointers + p, rangeDouble},
		{"last double-indirect block", directPointers + p + p*p - 1, rangeDouble},
		{"first triple-indirect block", directPointers + p + p*p, rangeTriple},
		{"last triple-indirect block", directPointers + p + p*p + p*p*p - 1, rangeTriple},
		{"first out-of-range block", directPointers + p + p*p + p*p*p, rangeTooBig},
	}

	for _, c := range cases {
		got, _ := classify(sb, c.blockOff)
		if got != c.want {
			t.Errorf("%s: classify(%d) = %v, want %v", c.name, c.blockOff, got, c.want)
		}
	}
}

// TestClassifyIndexPaths checks the decoded index path at the first slot
// of each indirection range, which resolveIndirect uses directly as
// pointer-block offsets.
func TestClassifyIndexPaths(t *testing.T) {
	sb := &superblock{logBlockSize: 0}
	const p = 256

	_, singlePath := classify(sb, directPointers)
	if len(singlePath) != 1 || singlePath[0] != 0 {
		t.Errorf("first single-indirect block: got path %v, want [0]", singlePath)
	}

	_, doublePath := classify(sb, directPointers+p)
	if len(doublePath) != 2 || doublePath[0] != 0 || doublePath[1] != 0 {
		t.Errorf("first double-indirect block: got path %v, want [0 0]", doublePath)
	}

	_, lastDoublePath := classify(sb, directPointers+p+p*p-1)
	if len(lastDoublePath) != 2 || lastDoublePath[0] != p-1 || lastDoublePath[1] != p-1 {
		t.Errorf("last double-indirect block: got path %v, want [%d %d]", lastDoublePath, p-1, p-1)
	}

	_, triplePath := classify(sb, directPointers+p+p*p)
	if len(triplePath) != 3 || triplePath[0] != 0 || triplePath[1] != 0 || triplePath[2] != 0 {
		t.Errorf("first triple-indirect block: got path %v, want [0 0 0]", triplePath)
	}
}
