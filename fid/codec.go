package fid

import (
	"encoding/binary"
	"math"
)

// sampleKind is the on-disk numeric type of one value.
type sampleKind int

const (
	sampleFloat32 sampleKind = iota
	sampleInt32
	sampleFloat64
)

// sampleCodec converts between on-disk values and float64.
type sampleCodec struct {
	kind  sampleKind
	order binary.ByteOrder
}

var rs2dCodec = sampleCodec{kind: sampleFloat32, order: binary.BigEndian}

func (c sampleCodec) width() int {
	if c.kind == sampleFloat64 {
		return 8
	}
	return 4
}

// decode fills dst from len(dst)*width bytes of src.
func (c sampleCodec) decode(dst []float64, src []byte) {
	w := c.width()
	for i := range dst {
		b := src[i*w : i*w+w]
		switch c.kind {
		case sampleFloat32:
			dst[i] = float64(math.Float32frombits(c.order.Uint32(b)))
		case sampleInt32:
			dst[i] = float64(int32(c.order.Uint32(b)))
		case sampleFloat64:
			dst[i] = math.Float64frombits(c.order.Uint64(b))
		}
	}
}

// encode fills len(src)*width bytes of dst.
func (c sampleCodec) encode(dst []byte, src []float64) {
	w := c.width()
	for i, v := range src {
		b := dst[i*w : i*w+w]
		switch c.kind {
		case sampleFloat32:
			c.order.PutUint32(b, math.Float32bits(float32(v)))
		case sampleInt32:
			c.order.PutUint32(b, uint32(int32(math.Round(v))))
		case sampleFloat64:
			c.order.PutUint64(b, math.Float64bits(v))
		}
	}
}
