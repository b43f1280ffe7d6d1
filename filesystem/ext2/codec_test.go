package ext2

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/google/uuid"
	"github.com/mprimi/ext2fs/util"
)

// TestGroupDescriptorRoundTrip covers Component B's round-trip law for the
// group descriptor record: toBytes followed by groupDescriptorFromBytes
// must reproduce every field.
func TestGroupDescriptorRoundTrip(t *testing.T) {
	deep.CompareUnexportedFields = true
	gd := &groupDescriptor{
		blockBitmap:     10,
		inodeBitmap:     11,
		inodeTable:      12,
		freeBlocksCount: 4000,
		freeInodesCount: 123,
		usedDirsCount:   7,
	}
	got := groupDescriptorFromBytes(gd.toBytes())
	if diff := deep.Equal(gd, got); diff != nil {
		t.Errorf("group descriptor round trip not equal: %v", diff)
	}
}

// TestGroupDescriptorByteLayoutStable covers the other half of the codec
// law: re-encoding a decoded descriptor must reproduce the exact original
// bytes, not just an equal struct. Grounded on the teacher's
// groupdescriptors_test.go, which diffs encoded bytes the same way.
func TestGroupDescriptorByteLayoutStable(t *testing.T) {
	gd := &groupDescriptor{
		blockBitmap:     10,
		inodeBitmap:     11,
		inodeTable:      12,
		freeBlocksCount: 4000,
		freeInodesCount: 123,
		usedDirsCount:   7,
	}
	original := gd.toBytes()
	reEncoded := groupDescriptorFromBytes(original).toBytes()
	if different, diffString := util.DumpByteSlicesWithDiffs(original, reEncoded, 16, false, true, true); different {
		t.Errorf("group descriptor bytes unstable across a decode/re-encode cycle:\n%s", diffString)
	}
}

// TestDirentRoundTrip covers the directory-entry codec, with and without
// the file-type byte the featureIncompatFiletype bit controls.
func TestDirentRoundTrip(t *testing.T) {
	deep.CompareUnexportedFields = true

	e := dirent{
		inodeNum: 42,
		recLen:   uint16(direntActualSize(len("readme.txt"))),
		nameLen:  uint8(len("readme.txt")),
		etype:    direntTypeRegular,
		name:     "readme.txt",
		offset:   0,
	}
	got := direntFromBytes(e.toBytes(true), true, 0)
	if diff := deep.Equal(e, got); diff != nil {
		t.Errorf("dirent round trip (with file type) not equal: %v", diff)
	}

	eNoType := e
	eNoType.etype = direntTypeUnknown
	gotNoType := direntFromBytes(eNoType.toBytes(false), false, 0)
	if diff := deep.Equal(eNoType, gotNoType); diff != nil {
		t.Errorf("dirent round trip (without file type) not equal: %v", diff)
	}
}

// TestSuperblockRoundTrip covers Component D's struct codec: every field
// superblockFromBytes parses must match what toBytes wrote, including the
// magic number and volume UUID.
func TestSuperblockRoundTrip(t *testing.T) {
	deep.CompareUnexportedFields = true

	id := uuid.New()
	sb := &superblock{
		inodesCount:     128,
		blocksCount:     8192,
		rBlocksCount:    409,
		freeBlocksCount: 8000,
		freeInodesCount: 100,
		firstDataBlock:  1,
		logBlockSize:    0,
		blocksPerGroup:  8192,
		inodesPerGroup:  128,
		mtime:           1700000000,
		wtime:           1700000000,
		magic:           ext2Magic,
		state:           1,
		errors:          1,
		lastcheck:       1700000000,
		revLevel:        revLevelDynamic,
		firstIno:        goodOldFirstIno,
		inodeSize:       goodOldInodeSize,
		featureIncompat: featureIncompatFiletype,
		uuid:            id,
	}
	sb.setLabel("testvol")

	got, err := superblockFromBytes(sb.toBytes())
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	if diff := deep.Equal(sb, got); diff != nil {
		t.Errorf("superblock round trip not equal: %v", diff)
	}
	if got.label() != "testvol" {
		t.Errorf("expected label %q, got %q", "testvol", got.label())
	}
}

// TestSuperblockByteLayoutStable mirrors the teacher's TestSuperblockToBytes:
// re-encoding a parsed superblock must reproduce the exact original bytes.
func TestSuperblockByteLayoutStable(t *testing.T) {
	sb := &superblock{
		inodesCount:     128,
		blocksCount:     8192,
		rBlocksCount:    409,
		freeBlocksCount: 8000,
		freeInodesCount: 100,
		firstDataBlock:  1,
		logBlockSize:    0,
		blocksPerGroup:  8192,
		inodesPerGroup:  128,
		mtime:           1700000000,
		wtime:           1700000000,
		magic:           ext2Magic,
		state:           1,
		errors:          1,
		lastcheck:       1700000000,
		revLevel:        revLevelDynamic,
		firstIno:        goodOldFirstIno,
		inodeSize:       goodOldInodeSize,
		featureIncompat: featureIncompatFiletype,
		uuid:            uuid.New(),
	}
	sb.setLabel("testvol")

	original := sb.toBytes()
	got, err := superblockFromBytes(original)
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	reEncoded := got.toBytes()
	if different, diffString := util.DumpByteSlicesWithDiffs(original, reEncoded, 32, false, true, true); different {
		t.Errorf("superblock bytes unstable across a decode/re-encode cycle:\n%s", diffString)
	}
}

// TestInodeRoundTrip covers the inode codec for a regular file with a
// handful of direct pointers populated.
func TestInodeRoundTrip(t *testing.T) {
	deep.CompareUnexportedFields = true

	i := &inode{
		number:     11,
		fileType:   fileTypeRegularFile,
		permOwner:  parseOwnerPermissions(0o644),
		permGroup:  parseGroupPermissions(0o644),
		permOther:  parseOtherPermissions(0o644),
		uid:        1000,
		gid:        1000,
		hardLinks:  1,
		accessTime: 1700000000,
		changeTime: 1700000000,
		modifyTime: 1700000000,
	}
	i.direct[0] = 50
	i.direct[1] = 51
	i.updateSize(2048, 1024)

	raw := i.toBytes(goodOldInodeSize)
	got, err := inodeFromBytes(raw, i.number)
	if err != nil {
		t.Fatalf("inodeFromBytes: %v", err)
	}
	if diff := deep.Equal(i, got); diff != nil {
		t.Errorf("inode round trip not equal: %v", diff)
	}
}
