package clod

import (
	"encoding/binary"
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

const (
	CLOD_SIGNATURE          = "clod"
	CLOD_VERSION            = 1
	CLOD_HEADER_SIZE        = 4 + 4 + 6*8 + 4*4
	CLOD_INDEX_ALIGNMENT    = 4
	CLOD_PADDING_BYTE       = 0xCA
	CLUSTER_DESCRIPTOR_SIZE = 10*4 + 6*8

	CLOD_CLUSTER_SECTION_ID = 1
	CLOD_ROOT_SECTION_ID    = 2
)

const (
	clusterFlagLODRoot uint32 = 1 << iota
)

var (
	byteOrder = binary.LittleEndian

	CLUSTER_SECTION_HEADER = SectionHeader{SectionId: CLOD_CLUSTER_SECTION_ID}
	ROOT_SECTION_HEADER    = SectionHeader{SectionId: CLOD_ROOT_SECTION_ID}
)

type ContainerHeader struct {
	Signature   [4]byte
	Version     uint32
	LowerX      float64
	LowerY      float64
	LowerZ      float64
	UpperX      float64
	UpperY      float64
	UpperZ      float64
	NumQuads    uint32
	NumVertices uint32
	NumClusters uint32
	NumRoots    uint32
}

type SectionHeader struct {
	SectionId     uint8
	SectionLength uint32
}

// clusterRecord is the fixed size encoding of a ClusterDescriptor.
type clusterRecord struct {
	ID             int32
	MeshID         int32
	OffsetIndices  uint32
	OffsetVertices uint32
	NumQuads       uint32
	NumVertices    uint32
	NumBlocks      uint32
	LODLeft        int32
	LODRight       int32
	Flags          uint32
	Lower          [3]float64
	Upper          [3]float64
}

func newClusterRecord(d ClusterDescriptor) clusterRecord {
	r := clusterRecord{
		ID:             d.ID,
		MeshID:         d.MeshID,
		OffsetIndices:  d.OffsetIndices,
		OffsetVertices: d.OffsetVertices,
		NumQuads:       d.NumQuads,
		NumVertices:    d.NumVertices,
		NumBlocks:      d.NumBlocks,
		LODLeft:        d.LODLeft,
		LODRight:       d.LODRight,
		Lower:          d.Bounds.Lower,
		Upper:          d.Bounds.Upper,
	}
	if d.LODRoot {
		r.Flags |= clusterFlagLODRoot
	}
	return r
}

func (r clusterRecord) descriptor() ClusterDescriptor {
	return ClusterDescriptor{
		ID:             r.ID,
		MeshID:         r.MeshID,
		OffsetIndices:  r.OffsetIndices,
		OffsetVertices: r.OffsetVertices,
		NumQuads:       r.NumQuads,
		NumVertices:    r.NumVertices,
		NumBlocks:      r.NumBlocks,
		LODLeft:        r.LODLeft,
		LODRight:       r.LODRight,
		LODRoot:        r.Flags&clusterFlagLODRoot != 0,
		Bounds:         BBox{Lower: r.Lower, Upper: r.Upper},
	}
}

// MeshContainer is the serialized form of one compressed mesh with its
// cluster descriptors and the ids of its LOD roots.
type MeshContainer struct {
	Header   ContainerHeader
	Mesh     *CompressedMesh
	Clusters []ClusterDescriptor
	Roots    []int32
}

func NewMeshContainer(mesh *CompressedMesh, clusters []ClusterDescriptor, roots []int32) *MeshContainer {
	c := &MeshContainer{Mesh: mesh, Clusters: clusters, Roots: roots}
	copy(c.Header.Signature[:], CLOD_SIGNATURE)
	c.Header.Version = CLOD_VERSION
	c.Header.LowerX, c.Header.LowerY, c.Header.LowerZ = mesh.Bounds.Lower[0], mesh.Bounds.Lower[1], mesh.Bounds.Lower[2]
	c.Header.UpperX, c.Header.UpperY, c.Header.UpperZ = mesh.Bounds.Upper[0], mesh.Bounds.Upper[1], mesh.Bounds.Upper[2]
	c.Header.NumQuads = uint32(len(mesh.Indices))
	c.Header.NumVertices = uint32(len(mesh.Vertices))
	c.Header.NumClusters = uint32(len(clusters))
	c.Header.NumRoots = uint32(len(roots))
	return c
}

func (h *ContainerHeader) bounds() BBox {
	return BBox{
		Lower: vec3d.T{h.LowerX, h.LowerY, h.LowerZ},
		Upper: vec3d.T{h.UpperX, h.UpperY, h.UpperZ},
	}
}

func encodeZigZag(i int16) uint16 {
	return uint16((i >> 15) ^ (i << 1))
}

func decodeZigZag(encoded uint16) int16 {
	return int16(encoded>>1) ^ -int16(encoded&1)
}

// READ_CHUNK_ELEMENTS bounds how many elements Read decodes at once. Counts
// come from the input, so buffers only grow as their data arrives.
const READ_CHUNK_ELEMENTS = 4096

func readChunked[T any](reader io.Reader, count int) ([]T, error) {
	res := make([]T, 0, min(count, READ_CHUNK_ELEMENTS))
	chunk := make([]T, min(count, READ_CHUNK_ELEMENTS))
	for remaining := count; remaining > 0; {
		n := min(remaining, READ_CHUNK_ELEMENTS)
		if err := binary.Read(reader, byteOrder, chunk[:n]); err != nil {
			return nil, err
		}
		res = append(res, chunk[:n]...)
		remaining -= n
	}
	return res, nil
}

func calcPadding(offset, paddingUnit int) int {
	padding := offset % paddingUnit
	if padding != 0 {
		padding = paddingUnit - padding
	}
	return padding
}

// writeVertices stores the vertex count followed by the zig-zag coded deltas
// of consecutive coordinates. Deltas wrap around at 16 bits.
func writeVertices(writer io.Writer, vertices []CompressedVertex) (int, error) {
	data := make([]uint16, 0, len(vertices)*3)
	var prevX, prevY, prevZ uint16
	for _, v := range vertices {
		data = append(data,
			encodeZigZag(int16(v.X-prevX)),
			encodeZigZag(int16(v.Y-prevY)),
			encodeZigZag(int16(v.Z-prevZ)))
		prevX, prevY, prevZ = v.X, v.Y, v.Z
	}

	if err := binary.Write(writer, byteOrder, uint32(len(vertices))); err != nil {
		return 0, err
	}
	if err := binary.Write(writer, byteOrder, data); err != nil {
		return 0, err
	}
	return 4 + len(data)*2, nil
}

func readVertices(reader io.Reader, expected uint32) ([]CompressedVertex, int, error) {
	var count uint32
	if err := binary.Read(reader, byteOrder, &count); err != nil {
		return nil, 0, err
	}
	if count != expected {
		return nil, 0, errors.New("vertex count does not match header").
			WithType(ErrTypeMalformedData).
			WithTag("count", count).
			WithTag("expected", expected)
	}

	data, err := readChunked[uint16](reader, int(count)*3)
	if err != nil {
		return nil, 0, err
	}

	vertices := make([]CompressedVertex, count)
	var x, y, z uint16
	for i := range vertices {
		x += uint16(decodeZigZag(data[i*3]))
		y += uint16(decodeZigZag(data[i*3+1]))
		z += uint16(decodeZigZag(data[i*3+2]))
		vertices[i] = CompressedVertex{X: x, Y: y, Z: z}
	}
	return vertices, 4 + len(data)*2, nil
}

func writeIndices(writer io.Writer, indices []CompressedQuadIndices) error {
	if err := binary.Write(writer, byteOrder, uint32(len(indices))); err != nil {
		return err
	}
	return binary.Write(writer, byteOrder, indices)
}

func readIndices(reader io.Reader, expected uint32) ([]CompressedQuadIndices, error) {
	var count uint32
	if err := binary.Read(reader, byteOrder, &count); err != nil {
		return nil, err
	}
	if count != expected {
		return nil, errors.New("quad count does not match header").
			WithType(ErrTypeMalformedData).
			WithTag("count", count).
			WithTag("expected", expected)
	}
	return readChunked[CompressedQuadIndices](reader, int(count))
}

func (c *MeshContainer) Write(writer io.Writer) error {
	if err := binary.Write(writer, byteOrder, c.Header); err != nil {
		return err
	}
	offset, err := writeVertices(writer, c.Mesh.Vertices)
	if err != nil {
		return err
	}
	if padding := calcPadding(CLOD_HEADER_SIZE+offset, CLOD_INDEX_ALIGNMENT); padding > 0 {
		buf := make([]byte, padding)
		for i := range buf {
			buf[i] = CLOD_PADDING_BYTE
		}
		if _, err := writer.Write(buf); err != nil {
			return err
		}
	}
	if err := writeIndices(writer, c.Mesh.Indices); err != nil {
		return err
	}

	head := CLUSTER_SECTION_HEADER
	head.SectionLength = uint32(len(c.Clusters) * CLUSTER_DESCRIPTOR_SIZE)
	if err := binary.Write(writer, byteOrder, head); err != nil {
		return err
	}
	for _, d := range c.Clusters {
		if err := binary.Write(writer, byteOrder, newClusterRecord(d)); err != nil {
			return err
		}
	}

	head = ROOT_SECTION_HEADER
	head.SectionLength = uint32(len(c.Roots) * 4)
	if err := binary.Write(writer, byteOrder, head); err != nil {
		return err
	}
	return binary.Write(writer, byteOrder, c.Roots)
}

func malformed(section string, err error) error {
	if errors.IsType(err, ErrTypeMalformedData) {
		return err
	}
	return errors.New("reading container failed").
		WithType(ErrTypeMalformedData).
		WithTag("section", section).
		Wrap(err)
}

func readSectionHeader(reader io.Reader, id uint8, length int) error {
	var head SectionHeader
	if err := binary.Read(reader, byteOrder, &head); err != nil {
		return err
	}
	if head.SectionId != id || int(head.SectionLength) != length {
		return errors.New("unexpected section header").
			WithType(ErrTypeMalformedData).
			WithTag("id", head.SectionId).
			WithTag("length", head.SectionLength).
			WithTag("expected_id", id).
			WithTag("expected_length", length)
	}
	return nil
}

// Read decodes a container written by Write. Truncated or inconsistent input
// fails with ErrTypeMalformedData.
func (c *MeshContainer) Read(reader io.Reader) error {
	if err := binary.Read(reader, byteOrder, &c.Header); err != nil {
		return malformed("header", err)
	}
	if string(c.Header.Signature[:]) != CLOD_SIGNATURE || c.Header.Version != CLOD_VERSION {
		return errors.New("not a clod container").
			WithType(ErrTypeMalformedData).
			WithTag("signature", string(c.Header.Signature[:])).
			WithTag("version", c.Header.Version)
	}

	vertices, offset, err := readVertices(reader, c.Header.NumVertices)
	if err != nil {
		return malformed("vertices", err)
	}
	if padding := calcPadding(CLOD_HEADER_SIZE+offset, CLOD_INDEX_ALIGNMENT); padding > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(padding)); err != nil {
			return malformed("padding", err)
		}
	}
	indices, err := readIndices(reader, c.Header.NumQuads)
	if err != nil {
		return malformed("indices", err)
	}

	if err := readSectionHeader(reader, CLOD_CLUSTER_SECTION_ID, int(c.Header.NumClusters)*CLUSTER_DESCRIPTOR_SIZE); err != nil {
		return malformed("clusters", err)
	}
	records, err := readChunked[clusterRecord](reader, int(c.Header.NumClusters))
	if err != nil {
		return malformed("clusters", err)
	}

	if err := readSectionHeader(reader, CLOD_ROOT_SECTION_ID, int(c.Header.NumRoots)*4); err != nil {
		return malformed("roots", err)
	}
	roots, err := readChunked[int32](reader, int(c.Header.NumRoots))
	if err != nil {
		return malformed("roots", err)
	}

	c.Mesh = &CompressedMesh{
		Bounds:      c.Header.bounds(),
		NumQuads:    c.Header.NumQuads,
		NumVertices: c.Header.NumVertices,
		Vertices:    vertices,
		Indices:     indices,
	}
	c.Clusters = make([]ClusterDescriptor, 0, len(records))
	for i, r := range records {
		d := r.descriptor()
		if uint64(d.OffsetIndices)+uint64(d.NumQuads) > uint64(len(indices)) ||
			uint64(d.OffsetVertices)+uint64(d.NumVertices) > uint64(len(vertices)) {
			return errors.New("cluster range exceeds mesh buffers").
				WithType(ErrTypeMalformedData).
				WithTag("cluster", i)
		}
		c.Clusters = append(c.Clusters, d)
	}
	if len(c.Clusters) > 0 {
		c.Mesh.ID = c.Clusters[0].MeshID
	}
	c.Roots = roots
	return nil
}

// MeshContainer collects mesh meshID with its descriptors and roots for
// serialization.
func (s *Scene) MeshContainer(meshID int32) (*MeshContainer, error) {
	if meshID < 0 || int(meshID) >= len(s.Meshes) {
		return nil, errors.New("mesh id out of range").
			WithType(ErrTypeInvalidInput).
			WithTag("mesh", meshID).
			WithTag("meshes", len(s.Meshes))
	}
	var clusters []ClusterDescriptor
	for _, d := range s.Clusters {
		if d.MeshID == meshID {
			clusters = append(clusters, d)
		}
	}
	var roots []int32
	for _, id := range s.ClusterRoots {
		if s.Clusters[id].MeshID == meshID {
			roots = append(roots, id)
		}
	}
	return NewMeshContainer(s.Meshes[meshID], clusters, roots), nil
}
